package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.miragespace.co/dht/spec/protocol"
	rpcSpec "go.miragespace.co/dht/spec/rpc"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	pool "github.com/libp2p/go-buffer-pool"
	"github.com/twitchtv/twirp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const DefaultMaxPayload = 8 << 20

type ServerConfig struct {
	Logger *zap.Logger
	// MaxPayload caps the size of a request body in bytes
	MaxPayload int64
}

func (c *ServerConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	return nil
}

// Server dispatches ring RPCs by method name. Handlers are registered with Register
// and the router may be shared with other routes.
type Server struct {
	ServerConfig
	router   chi.Router
	methods  chi.Router
	requests *atomic.Uint64
}

func NewServer(cfg ServerConfig, router chi.Router) *Server {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if router == nil {
		router = chi.NewRouter()
	}
	methods := chi.NewRouter()
	methods.Use(middleware.RequestSize(cfg.MaxPayload))
	methods.NotFound(func(w http.ResponseWriter, r *http.Request) {
		twirp.WriteError(w, twirp.NewError(twirp.BadRoute, "unknown method "+r.URL.Path))
	})
	methods.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		twirp.WriteError(w, twirp.NewError(twirp.BadRoute, "unsupported http method "+r.Method))
	})
	router.Mount(strings.TrimSuffix(rpcSpec.PathPrefix, "/"), methods)
	return &Server{
		ServerConfig: cfg,
		router:       router,
		methods:      methods,
		requests:     atomic.NewUint64(0),
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Requests returns the number of RPCs served
func (s *Server) Requests() uint64 {
	return s.requests.Load()
}

// Register mounts fn under method. newReq must return an empty request to decode into.
func Register[R protocol.Message](s *Server, method string, newReq func() R, fn func(context.Context, R) (protocol.Message, error)) {
	s.methods.Post("/"+method, s.unary(method, func(ctx context.Context, body []byte) (protocol.Message, error) {
		req := newReq()
		if err := req.UnmarshalVT(body); err != nil {
			return nil, twirp.NewError(twirp.Malformed, err.Error())
		}
		return fn(ctx, req)
	}))
}

func (s *Server) unary(method string, fn func(context.Context, []byte) (protocol.Message, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Inc()

		buf := pool.NewBuffer(nil)
		defer buf.Reset()

		if _, err := buf.ReadFrom(r.Body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				twirp.WriteError(w, twirp.NewError(twirp.ResourceExhausted, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)))
				return
			}
			twirp.WriteError(w, twirp.NewError(twirp.Malformed, err.Error()))
			return
		}

		resp, err := fn(r.Context(), buf.Bytes())
		if err != nil {
			s.Logger.Debug("RPC handler returned error", zap.String("method", method), zap.Error(err))
			twirp.WriteError(w, rpcSpec.WrapError(err))
			return
		}

		out, err := resp.MarshalVT()
		if err != nil {
			s.Logger.Error("Failed to encode RPC response", zap.String("method", method), zap.Error(err))
			twirp.WriteError(w, twirp.InternalErrorWith(err))
			return
		}

		w.Header().Set("Content-Type", rpcSpec.ContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	}
}
