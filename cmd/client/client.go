package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chordImpl "go.miragespace.co/dht/chord"
	"go.miragespace.co/dht/rpc"
	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	"go.miragespace.co/dht/timing"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func Generate() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "query a running ring through one of its nodes",
		Description: `Key operations locate the owner of the key through the given node, then call the owner directly.
	Operations that reach a node which no longer owns the key are retried.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "127.0.0.1:7700",
				Usage:   "Advertise address of any node in the ring",
				EnvVars: []string{"DHT_SERVER"},
			},
			&cli.UintFlag{
				Name:    "bits",
				Value:   uint(chord.DefaultBits),
				Usage:   "Size of the identifier space in bits, must match the ring",
				EnvVars: []string{"DHT_BITS"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: timing.ChordRPCTimeout,
				Usage: "Deadline of a single call to a node",
			},
		},
		Before: func(ctx *cli.Context) error {
			if !chord.Space(ctx.Uint("bits")).Valid() {
				return fmt.Errorf("bits must be between 1 and 63")
			}
			if ctx.Duration("timeout") <= 0 {
				return fmt.Errorf("timeout must be positive")
			}
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				ArgsUsage: "KEY",
				Usage:     "print every value bound to a key, one per line",
				Action:    cmdGet,
			},
			{
				Name:      "add",
				ArgsUsage: "KEY VALUE",
				Usage:     "bind a value to a key. Binding the same value twice keeps two copies",
				Action:    cmdAdd,
			},
			{
				Name:      "delete",
				ArgsUsage: "KEY VALUE",
				Usage:     "remove one copy of a value from a key",
				Action:    cmdDelete,
			},
			{
				Name:      "find",
				ArgsUsage: "ID",
				Usage:     "print the node responsible for an identifier",
				Action:    cmdFind,
			},
			{
				Name:      "routes",
				ArgsUsage: " ",
				Usage:     "print the finger table of the node",
				Action:    debugAction(http.MethodGet, "routes"),
			},
			{
				Name:      "display",
				ArgsUsage: " ",
				Usage:     "print the bindings held by the node",
				Action:    debugAction(http.MethodGet, "bindings"),
			},
			{
				Name:      "stats",
				ArgsUsage: " ",
				Usage:     "print state history and peer latency of the node",
				Action:    debugAction(http.MethodGet, "stats"),
			},
			{
				Name:      "graph",
				ArgsUsage: " ",
				Usage:     "print the ring as seen from the node in DOT format",
				Action:    debugAction(http.MethodGet, "graph"),
			},
			{
				Name:      "fix-fingers",
				ArgsUsage: " ",
				Usage:     "refresh the finger table of the node now",
				Action:    debugAction(http.MethodPost, "fingers"),
			},
		},
	}
}

type ringClient struct {
	logger *zap.Logger
	client *rpc.Client
	entry  *chordImpl.RemoteNode
	kv     chord.KV
}

func (r *ringClient) Close() {
	r.client.Close()
}

func getLogger(ctx *cli.Context) (*zap.Logger, error) {
	logger, ok := ctx.App.Metadata["logger"].(*zap.Logger)
	if !ok || logger == nil {
		return nil, fmt.Errorf("unable to obtain logger from app context")
	}
	return logger, nil
}

func dialRing(ctx *cli.Context) (*ringClient, error) {
	logger, err := getLogger(ctx)
	if err != nil {
		return nil, err
	}

	addr, err := protocol.ParseNode(ctx.String("server"))
	if err != nil {
		return nil, err
	}

	client := rpc.NewClient(rpc.ClientConfig{
		Logger:  logger.With(zap.String("component", "rpc_client")),
		Timeout: ctx.Duration("timeout"),
	})

	identity, err := chordImpl.NewRemoteNode(logger, client, addr, nil).Identify(ctx.Context)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to %s: %w", addr.GetAddress(), err)
	}
	logger.Debug("Connected to ring", zap.Object("entry", identity))

	entry := chordImpl.NewRemoteNode(logger, client, identity, nil)
	space := chord.Space(ctx.Uint("bits"))

	return &ringClient{
		logger: logger,
		client: client,
		entry:  entry,
		kv:     chord.WrapRetryKV(chordImpl.NewRoutedKV(entry, space), timing.ChordKVRetryInterval, timing.ChordKVRetryAttempts),
	}, nil
}

func expectArgs(ctx *cli.Context, n int) error {
	if ctx.NArg() != n {
		return fmt.Errorf("expected %d arguments, got %d", n, ctx.NArg())
	}
	return nil
}

func cmdGet(ctx *cli.Context) error {
	if err := expectArgs(ctx, 1); err != nil {
		return err
	}
	r, err := dialRing(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	values, err := r.kv.Get(ctx.Context, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Fprintln(ctx.App.Writer, v)
	}
	return nil
}

func cmdAdd(ctx *cli.Context) error {
	if err := expectArgs(ctx, 2); err != nil {
		return err
	}
	r, err := dialRing(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.kv.Add(ctx.Context, ctx.Args().Get(0), ctx.Args().Get(1))
}

func cmdDelete(ctx *cli.Context) error {
	if err := expectArgs(ctx, 2); err != nil {
		return err
	}
	r, err := dialRing(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.kv.Delete(ctx.Context, ctx.Args().Get(0), ctx.Args().Get(1))
}

func cmdFind(ctx *cli.Context) error {
	if err := expectArgs(ctx, 1); err != nil {
		return err
	}
	id, err := strconv.ParseUint(ctx.Args().Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid identifier: %w", err)
	}
	if space := chord.Space(ctx.Uint("bits")); id >= space.Size() {
		return fmt.Errorf("identifier must be less than 2^%d", space)
	}
	r, err := dialRing(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	succ, err := r.entry.FindSuccessor(id)
	if err != nil {
		return err
	}
	if succ == nil {
		return chord.ErrNodeNoSuccessor
	}
	fmt.Fprintln(ctx.App.Writer, succ.Identity().String())
	return nil
}

func debugAction(method, page string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		addr, err := protocol.ParseNode(ctx.String("server"))
		if err != nil {
			return err
		}

		reqCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, method, fmt.Sprintf("http://%s/debug/%s", addr.GetAddress(), page), nil)
		if err != nil {
			return err
		}
		c := &http.Client{Timeout: ctx.Duration("timeout") + time.Second}
		resp, err := c.Do(req)
		if err != nil {
			return fmt.Errorf("requesting %s: %w", page, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("requesting %s: unexpected status %s", page, resp.Status)
		}
		_, err = io.Copy(ctx.App.Writer, resp.Body)
		return err
	}
}
