package rpc

import (
	"fmt"

	"go.miragespace.co/dht/spec/chord"

	"github.com/twitchtv/twirp"
)

func GetErrorMeta(err twirp.Error) (cause, kv string) {
	cause = err.Meta("cause")
	kv = err.Meta("kv")
	return
}

func errorCode(err error) twirp.ErrorCode {
	if chord.ErrorIsRetryable(err) {
		return twirp.FailedPrecondition
	}
	return twirp.Internal
}

// WrapError converts a handler error into a twirp error. Sentinel messages are kept
// verbatim so chord.ErrorMapper can restore them on the caller side.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var twerr twirp.Error
	if te, ok := err.(twirp.Error); ok {
		return te
	}
	cause := chord.ErrorMapper(unwrapOperation(err))
	twerr = twirp.NewError(errorCode(err), cause.Error())
	twerr = twerr.WithMeta("cause", fmt.Sprintf("%T", err)) // to easily tell apart wrapped internal errors from explicit ones
	return twirp.WrapError(twerr, err)
}

func WrapErrorKV(key string, err error) error {
	if err == nil {
		return nil
	}
	twerr := WrapError(err).(twirp.Error)
	return twerr.WithMeta("kv", key)
}

// unwrapOperation strips OperationError layers so the innermost cause crosses the wire,
// as the caller will attribute the failure to the node it called.
func unwrapOperation(err error) error {
	for {
		opErr, ok := err.(*chord.OperationError)
		if !ok || opErr.Err == nil {
			return err
		}
		err = opErr.Err
	}
}
