package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	rpcSpec "go.miragespace.co/dht/spec/rpc"
	"go.miragespace.co/dht/spec/rtt"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/twitchtv/twirp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrClientClosed = fmt.Errorf("rpc: client already closed")

type ClientConfig struct {
	Logger *zap.Logger
	// Timeout bounds every call, including connection establishment
	Timeout time.Duration
	// DisableKeepAlives avoids lingering connections. Used in tests
	DisableKeepAlives bool
	// Recorder, if set, receives the round trip time of successful calls
	Recorder rtt.Recorder
}

func (c *ClientConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("non-positive Timeout is invalid")
	}
	return nil
}

// Client issues ring RPCs over HTTP. Request and response bodies are protobuf
// binary, and failures arrive as twirp JSON error envelopes.
type Client struct {
	ClientConfig
	http   *http.Client
	calls  *atomic.Uint64
	closed *atomic.Bool
}

func NewClient(cfg ClientConfig) *Client {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DisableKeepAlives = cfg.DisableKeepAlives
	t.MaxIdleConnsPerHost = 8
	return &Client{
		ClientConfig: cfg,
		http: &http.Client{
			Transport: t,
		},
		calls:  atomic.NewUint64(0),
		closed: atomic.NewBool(false),
	}
}

// Call invokes method on node with req, decoding the reply into resp. Errors returned by
// the remote handler are surfaced as twirp.Error with the sentinel restored where known.
func (c *Client) Call(ctx context.Context, node *protocol.Node, method string, req, resp protocol.Message) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if node == nil {
		return chord.ErrNodeNil
	}

	body, err := req.MarshalVT()
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	url := "http://" + node.GetAddress() + rpcSpec.PathPrefix + method
	hReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	hReq.Header.Set("Content-Type", rpcSpec.ContentType)

	c.calls.Inc()
	start := time.Now()

	hResp, err := c.http.Do(hReq)
	if err != nil {
		return err
	}
	defer hResp.Body.Close()

	buf := pool.NewBuffer(nil)
	defer buf.Reset()

	if _, err := buf.ReadFrom(hResp.Body); err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	if hResp.StatusCode != http.StatusOK {
		return chord.ErrorMapper(decodeError(hResp.StatusCode, buf.Bytes()))
	}

	if err := resp.UnmarshalVT(buf.Bytes()); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}

	if c.Recorder != nil {
		c.Recorder.Record(rtt.MakeMeasurementKey(node), float64(time.Since(start)))
	}

	return nil
}

// Calls returns the number of calls attempted since creation
func (c *Client) Calls() uint64 {
	return c.calls.Load()
}

func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.http.CloseIdleConnections()
}

type errorEnvelope struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Meta map[string]string `json:"meta"`
}

func decodeError(status int, body []byte) twirp.Error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Code == "" {
		return twirp.NewError(twirp.Internal, fmt.Sprintf("unexpected status %d from peer", status))
	}
	code := twirp.ErrorCode(env.Code)
	if !twirp.IsValidErrorCode(code) {
		code = twirp.Internal
	}
	twerr := twirp.NewError(code, env.Msg)
	for k, v := range env.Meta {
		twerr = twerr.WithMeta(k, v)
	}
	return twerr
}
