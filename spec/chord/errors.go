package chord

import (
	"context"
	"errors"
	"fmt"

	"go.miragespace.co/dht/spec/protocol"

	"github.com/twitchtv/twirp"
)

var (
	ErrKVStaleOwnership  = errorDef("chord/kv: processing node no longer has ownership over requested key", true)
	ErrJoinInvalidState  = errorDef("chord/membership: node cannot handle join request at the moment", true)
	ErrLeaveInvalidState = errorDef("chord/membership: node cannot handle leave request at the moment", true)

	ErrNodeGone          = errorDef("chord: node is not part of the chord ring", false)
	ErrNodeNotStarted    = errorDef("chord: node is not running", false)
	ErrNodeNoSuccessor   = errorDef("chord: node has no successor, possibly invalid chord ring", false)
	ErrNodeNil           = errorDef("chord: node cannot be nil", false)
	ErrDuplicateJoinerID = errorDef("chord/membership: joining node has duplicate ID as its successor", false)
	ErrRingUnreachable   = errorDef("chord: lookup made no progress within the hop limit, ring unreachable", false)
	ErrRingOperation     = errorDef("chord: ring operation failed", false)
	ErrTransferFailure   = errorDef("chord/membership: failed to transfer bindings", false)
)

// OperationError is returned by every call crossing the remote-call boundary. It carries
// the peer and the originating cause, and matches ErrRingOperation with errors.Is.
type OperationError struct {
	Op   string
	Peer *protocol.Node
	Err  error
}

var _ error = (*OperationError)(nil)

func (e *OperationError) Error() string {
	return fmt.Sprintf("chord: %s on %s failed: %v", e.Op, e.Peer.String(), e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrRingOperation
}

func ErrorIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for candidate, retryable := range retryableMap {
		if retryable && errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

// this is needed because RPC call squash type information, so in call site with signature
// if err == ErrABC will fail (but err.Error() == ErrABC.Error() will work).
func ErrorMapper(err error) error {
	if err == nil {
		return err
	}

	var (
		srcErr    = err.Error()
		parsedErr = err
	)

	var twirpErr twirp.Error
	if errors.As(err, &twirpErr) {
		srcErr = twirpErr.Msg()
	}

	if mapped, ok := errorStrMap[srcErr]; ok {
		parsedErr = mapped
	}

	return parsedErr
}

var retryableMap map[error]bool = map[error]bool{
	context.DeadlineExceeded: true,
}

var errorStrMap map[string]error = map[string]error{}

func errorDef(str string, retryable bool) error {
	err := errors.New(str)
	retryableMap[err] = retryable
	errorStrMap[str] = err
	return err
}
