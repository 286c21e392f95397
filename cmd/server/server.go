package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chordImpl "go.miragespace.co/dht/chord"
	"go.miragespace.co/dht/kv/memory"
	"go.miragespace.co/dht/rpc"
	"go.miragespace.co/dht/rtt"
	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	"go.miragespace.co/dht/timing"
	"go.miragespace.co/dht/util"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/alecthomas/units"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	rttSamples        = 32
	readHeaderTimeout = 5 * time.Second
)

func Generate() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start a dht node and join or create a ring",
		Description: `Every node serves the ring RPCs and its diagnostics over one HTTP listener. Diagnostics are under /debug.

	Absent of --join, the node creates a new ring and becomes its only member. On interrupt the node hands its bindings to its successor before exiting.`,
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "listen-addr",
				Aliases:  []string{"listen"},
				Value:    "0.0.0.0:7700",
				Usage:    "Address and port to listen for ring RPCs and debug requests",
				EnvVars:  []string{"DHT_LISTEN"},
				Category: "Network Options",
			},
			&cli.StringFlag{
				Name:        "advertise-addr",
				Aliases:     []string{"advertise"},
				DefaultText: "same as listen-addr, with the outbound address if unspecified",
				Usage: `Address and port other nodes use to reach this node.
			Note that the node identifier is derived from the advertised address unless --id is set`,
				EnvVars:  []string{"DHT_ADVERTISE"},
				Category: "Network Options",
			},
			&cli.StringFlag{
				Name:        "max-payload",
				Value:       "8MiB",
				Usage:       "Largest request body accepted from other nodes",
				EnvVars:     []string{"DHT_MAX_PAYLOAD"},
				Category:    "Network Options",
				DefaultText: "8MiB",
			},
			&cli.DurationFlag{
				Name:     "rpc-timeout",
				Value:    timing.ChordRPCTimeout,
				Usage:    "Deadline of a single call to another node",
				EnvVars:  []string{"DHT_RPC_TIMEOUT"},
				Category: "Network Options",
			},

			&cli.StringFlag{
				Name: "join",
				Usage: `A known node's advertise address.
			Absent of this flag will bootstrap a new ring with current node as the seed node`,
				EnvVars:  []string{"DHT_JOIN"},
				Category: "Chord Options",
			},
			&cli.UintFlag{
				Name:     "bits",
				Value:    uint(chord.DefaultBits),
				Usage:    "Size of the identifier space in bits. Every node of a ring must agree on it",
				EnvVars:  []string{"DHT_BITS"},
				Category: "Chord Options",
			},
			&cli.Uint64Flag{
				Name:        "id",
				DefaultText: "hash of advertise-addr",
				Usage:       "Override the identifier of this node",
				EnvVars:     []string{"DHT_ID"},
				Category:    "Chord Options",
			},
			&cli.DurationFlag{
				Name:     "stabilize-interval",
				Value:    timing.ChordStabilizeInterval,
				Usage:    "Average interval between stabilization rounds",
				EnvVars:  []string{"DHT_STABILIZE_INTERVAL"},
				Category: "Chord Options",
			},
			&cli.DurationFlag{
				Name:     "predecessor-check-interval",
				Value:    timing.ChordPredecessorCheckInterval,
				Usage:    "Average interval between liveness checks of the predecessor",
				EnvVars:  []string{"DHT_PREDECESSOR_CHECK_INTERVAL"},
				Category: "Chord Options",
			},

			&cli.PathFlag{
				Name:    "data-file",
				Aliases: []string{"data"},
				Usage: `Path to a YAML file of bindings. Bindings are imported from it after joining, if it exists,
			and the bindings held by this node are written to it on shutdown`,
				EnvVars:  []string{"DHT_DATA_FILE"},
				Category: "Server Options",
			},
			&cli.Int64Flag{
				Name:     "cache-size",
				Value:    1024,
				Usage:    "Number of remote node handles kept in memory",
				EnvVars:  []string{"DHT_CACHE_SIZE"},
				Category: "Server Options",
			},
			&cli.StringFlag{
				Name:        "sentry",
				DefaultText: "https://public@sentry.example.com/1",
				Usage:       "Sentry DSN for error monitoring. Alternatively, you can set the DSN via the environment variable SENTRY_DSN",
				EnvVars:     []string{"SENTRY_DSN"},
				Category:    "Server Options",
			},
		},
		Before: func(ctx *cli.Context) error {
			space := chord.Space(ctx.Uint("bits"))
			if !space.Valid() {
				return fmt.Errorf("bits must be between 1 and 63")
			}
			if ctx.IsSet("id") && ctx.Uint64("id") >= space.Size() {
				return fmt.Errorf("id must be less than 2^%d", space)
			}
			if _, err := units.ParseBase2Bytes(ctx.String("max-payload")); err != nil {
				return fmt.Errorf("invalid max-payload: %w", err)
			}
			if ctx.Duration("stabilize-interval") <= 0 || ctx.Duration("predecessor-check-interval") <= 0 {
				return fmt.Errorf("intervals must be positive")
			}
			if ctx.IsSet("sentry") {
				if _, err := sentry.NewDsn(ctx.String("sentry")); err != nil {
					return fmt.Errorf("invalid sentry DSN: %w", err)
				}
			}
			return nil
		},
		Action: cmdServer,
	}
}

// withSentry tees warnings and errors of logger to sentry, with lower levels kept as breadcrumbs
func withSentry(logger *zap.Logger, client *sentry.Client) *zap.Logger {
	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.WarnLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags: map[string]string{
			"component": "dht",
		},
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		logger.Warn("Failed to attach sentry to logger", zap.Error(err))
		return logger
	}
	return zapsentry.AttachCoreToLogger(core, logger)
}

// httpNoise lists net/http complaints that peers cannot act upon
var httpNoise = []string{
	"http: URL query contains semicolon",
	"http: superfluous response.WriteHeader",
}

// resolveIdentity derives the identity advertised to the ring. An unspecified host is
// replaced with the outbound address of this machine.
func resolveIdentity(listen, advertise string, space chord.Space, outbound func() (net.IP, error)) (*protocol.Node, error) {
	addr := advertise
	if addr == "" {
		addr = listen
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid advertise address %q: %w", addr, err)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return nil, fmt.Errorf("invalid advertise port in %q", addr)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		out, err := outbound()
		if err != nil {
			return nil, err
		}
		host = out.String()
	}
	node := &protocol.Node{
		Host: host,
		Port: uint32(p),
	}
	node.Id = space.HashString(node.GetAddress())
	return node, nil
}

func joinRing(ctx context.Context, logger *zap.Logger, client *rpc.Client, pool *chordImpl.NodePool, node *chordImpl.LocalNode, join string) error {
	if join == "" {
		return node.Create()
	}

	addr, err := protocol.ParseNode(join)
	if err != nil {
		return err
	}

	identifyCtx, cancel := context.WithTimeout(ctx, timing.ChordRPCTimeout)
	defer cancel()

	identity, err := chordImpl.NewRemoteNode(logger, client, addr, nil).Identify(identifyCtx)
	if err != nil {
		return fmt.Errorf("identifying seed node %s: %w", join, err)
	}
	seed, err := pool.Get(identity)
	if err != nil {
		return err
	}
	return node.Join(seed)
}

func cmdServer(ctx *cli.Context) error {
	logger, ok := ctx.App.Metadata["logger"].(*zap.Logger)
	if !ok || logger == nil {
		return fmt.Errorf("unable to obtain logger from app context")
	}

	if ctx.IsSet("sentry") {
		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn:     ctx.String("sentry"),
			Release: ctx.App.Version,
		})
		if err != nil {
			return fmt.Errorf("initializing sentry client: %w", err)
		}
		defer client.Flush(time.Second * 2)

		logger = withSentry(logger, client)
		defer logger.Sync()
	}

	space := chord.Space(ctx.Uint("bits"))
	maxPayload := util.Must(units.ParseBase2Bytes(ctx.String("max-payload")))

	identity, err := resolveIdentity(ctx.String("listen-addr"), ctx.String("advertise-addr"), space, util.OutboundIP)
	if err != nil {
		return err
	}
	if ctx.IsSet("id") {
		identity.Id = ctx.Uint64("id")
	}

	logger = logger.With(zapsentry.NewScope()).With(zap.Uint64("node", identity.GetId()))

	listener, err := net.Listen("tcp", ctx.String("listen-addr"))
	if err != nil {
		return fmt.Errorf("listening on %s: %w", ctx.String("listen-addr"), err)
	}
	defer listener.Close()

	measure := rtt.NewInstrumentation(rttSamples)

	client := rpc.NewClient(rpc.ClientConfig{
		Logger:   logger.With(zap.String("component", "rpc_client")),
		Timeout:  ctx.Duration("rpc-timeout"),
		Recorder: measure,
	})
	defer client.Close()

	pool := chordImpl.NewNodePool(logger, client, ctx.Int64("cache-size"))
	defer pool.Close()

	node := chordImpl.NewLocalNode(chordImpl.NodeConfig{
		Logger:                   logger,
		Identity:                 identity,
		Space:                    space,
		Store:                    memory.WithHashFn(space.HashString),
		BackupStore:              memory.WithHashFn(space.HashString),
		RemoteNodeFactory:        pool.Get,
		NodesRTT:                 measure,
		StabilizeInterval:        ctx.Duration("stabilize-interval"),
		PredecessorCheckInterval: ctx.Duration("predecessor-check-interval"),
		RPCTimeout:               ctx.Duration("rpc-timeout"),
	})
	pool.Attach(node)

	router := chi.NewRouter()
	rpcServer := rpc.NewServer(rpc.ServerConfig{
		Logger:     logger.With(zap.String("component", "rpc_server")),
		MaxPayload: int64(maxPayload),
	}, router)
	(&chordImpl.Server{
		LocalNode: node,
		Factory:   pool.Get,
	}).Register(rpcServer)
	router.Mount("/debug", chordImpl.DebugHandler(node))

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          util.GetStdLogger(logger, "http_server", httpNoise...),
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timing.ServerShutdownTimeout)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()

		if err := joinRing(gCtx, logger, client, pool, node, ctx.String("join")); err != nil {
			node.Stop()
			return fmt.Errorf("starting chord node: %w", err)
		}

		dataFile := ctx.Path("data-file")
		if dataFile != "" {
			if err := node.ImportFile(dataFile); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					logger.Info("No bindings file to import", zap.String("path", dataFile))
				} else {
					logger.Error("Failed to import bindings", zap.Error(err))
				}
			}
		}

		logger.Info("dht server started",
			zap.String("listen", listener.Addr().String()),
			zap.Object("identity", identity),
		)

		<-gCtx.Done()

		logger.Info("Received signal to stop server")

		if dataFile != "" {
			if err := node.ExportFile(dataFile); err != nil {
				logger.Error("Failed to export bindings", zap.Error(err))
			}
		}

		if err := node.Leave(); err != nil {
			logger.Error("Failed to leave ring gracefully", zap.Error(err))
			node.Stop()
		}

		return nil
	})

	return g.Wait()
}
