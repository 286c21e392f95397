package chord

import (
	"context"
	"errors"
	"expvar"
	"time"

	"github.com/avast/retry-go/v4"
)

var kvRetries = expvar.NewInt("chord.kvRetries")

type retryableWrapper struct {
	KV
	retryInterval time.Duration
	retryAttempts uint
}

// WrapRetryKV wraps a given KV to provide automatic retry on retryable errors, such as
// a request landing on a node that has just handed the key range to its new predecessor.
func WrapRetryKV(kv KV, interval time.Duration, maxAttempts uint) KV {
	return &retryableWrapper{
		KV:            kv,
		retryInterval: interval,
		retryAttempts: maxAttempts,
	}
}

// writeRetryable only accepts rejections the owner never applied. Add and Delete
// change a multiset, so a write that timed out may have landed and must not be repeated.
func writeRetryable(err error) bool {
	return errors.Is(err, ErrKVStaleOwnership)
}

func (n *retryableWrapper) retryOptions(ctx context.Context, retryIf retry.RetryIfFunc) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(n.retryAttempts),
		retry.Delay(n.retryInterval),
		retry.OnRetry(func(n uint, err error) {
			kvRetries.Add(1)
		}),
		retry.RetryIf(retryIf),
		retry.LastErrorOnly(true),
	}
}

func (n *retryableWrapper) Get(ctx context.Context, key string) ([]string, error) {
	return retry.DoWithData(func() ([]string, error) {
		return n.KV.Get(ctx, key)
	}, n.retryOptions(ctx, ErrorIsRetryable)...)
}

func (n *retryableWrapper) Add(ctx context.Context, key, value string) error {
	return retry.Do(func() error {
		return n.KV.Add(ctx, key, value)
	}, n.retryOptions(ctx, writeRetryable)...)
}

func (n *retryableWrapper) Delete(ctx context.Context, key, value string) error {
	return retry.Do(func() error {
		return n.KV.Delete(ctx, key, value)
	}, n.retryOptions(ctx, writeRetryable)...)
}
