package chord

import (
	"context"
	"errors"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/timing"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

const (
	maxAttempts = 10
)

func (n *LocalNode) Create() error {
	if _, ok := n.state.Transition(chord.Inactive, chord.Joining); !ok {
		return chord.ErrJoinInvalidState
	}

	n.logger.Info("Creating new Chord ring")

	n.setPredecessor(nil)
	n.setSuccessor(n)

	n.startTasks()

	n.state.Set(chord.Active)

	return nil
}

func (n *LocalNode) Join(peer chord.VNode) error {
	if peer == nil {
		return chord.ErrNodeNil
	}
	if _, ok := n.state.Transition(chord.Inactive, chord.Joining); !ok {
		return chord.ErrJoinInvalidState
	}

	succ, err := n.executeJoin(peer)
	if err != nil {
		n.state.Set(chord.Inactive)
		return err
	}

	n.setPredecessor(nil)
	n.setSuccessor(succ)

	if err := n.notifySuccessor(succ); err != nil {
		if !errors.Is(err, chord.ErrTransferFailure) {
			n.logger.Error("Failed to notify successor after joining", zap.Error(err))
			n.setSuccessor(n)
			n.clearBindings()
			n.state.Set(chord.Inactive)
			return err
		}
		// bindings were installed but the successor still holds a copy
		n.logger.Warn("Successor failed to drop transferred bindings", zap.Error(err))
	}

	n.FixFingers()
	n.startTasks()

	n.state.Set(chord.Active)

	n.logger.Info("Successfully joined Chord ring", zap.Object("successor", succ.Identity()))

	return nil
}

func (n *LocalNode) executeJoin(peer chord.VNode) (chord.VNode, error) {
	return retry.DoWithData(func() (chord.VNode, error) {
		n.logger.Info("Joining Chord ring",
			zap.Object("via", peer.Identity()),
		)
		succ, err := peer.FindSuccessor(n.ID())
		if err != nil {
			return nil, err
		}
		if succ == nil {
			return nil, chord.ErrNodeNoSuccessor
		}
		if succ.ID() == n.ID() {
			return nil, chord.ErrDuplicateJoinerID
		}
		return succ, nil
	},
		retry.Attempts(maxAttempts),
		retry.Delay(timing.ChordJoinRetryInterval),
		retry.LastErrorOnly(true),
		retry.RetryIf(chord.ErrorIsRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Warn("Retrying on join error", zap.Uint("attempt", attempt), zap.Error(err))
		}),
	)
}

// notifySuccessor tells succ about us and takes over the bindings it hands back.
func (n *LocalNode) notifySuccessor(succ chord.VNode) error {
	if succ.ID() == n.ID() {
		return nil
	}

	resp, err := succ.Notify(n)
	if err != nil {
		return err
	}

	transfer := resp.GetTransfer()

	n.mu.Lock()
	if len(transfer.GetBindings()) > 0 {
		n.installBindings(transfer)
	}
	if backup := resp.GetBackup(); backup != nil {
		n.backupBindings(backup)
	}
	n.mu.Unlock()

	if len(transfer.GetBindings()) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.RPCTimeout)
	defer cancel()

	if err := succ.DropBindings(ctx, n.ID()); err != nil {
		n.logger.Error("Successor failed to drop handed over bindings",
			zap.Object("successor", succ.Identity()),
			zap.Int("keys", len(transfer.GetBindings())),
			zap.Error(err),
		)
		return transferError(err)
	}

	n.logger.Info("Took over bindings from successor",
		zap.Object("successor", succ.Identity()),
		zap.Int("keys", len(transfer.GetBindings())),
	)

	return nil
}

// Leave hands every binding to our successor and stops participating in the ring.
// Neighbours repair their pointers through stabilization.
func (n *LocalNode) Leave() error {
	if _, ok := n.state.Transition(chord.Active, chord.Leaving); !ok {
		return chord.ErrLeaveInvalidState
	}

	n.logger.Info("Leaving Chord ring")

	n.stopTasks()

	var leaveErr error
	succ := n.getSuccessor()
	if succ.ID() != n.ID() {
		n.mu.Lock()
		payload := n.extractAllBindings()
		n.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), n.RPCTimeout)
		defer cancel()

		if err := succ.ImportBindings(ctx, payload); err != nil {
			n.logger.Error("Failed to hand over bindings to successor",
				zap.Object("successor", succ.Identity()),
				zap.Error(err),
			)
			leaveErr = transferError(err)
		} else {
			n.logger.Info("Handed over bindings to successor",
				zap.Object("successor", succ.Identity()),
				zap.Int("keys", len(payload.GetBindings())),
			)
		}
	}

	if leaveErr == nil {
		n.clearBindings()
	}

	n.state.Set(chord.Left)

	return leaveErr
}

// Stop halts background tasks without handing over bindings, as if the process crashed
func (n *LocalNode) Stop() {
	if n.state.Get() == chord.Left {
		return
	}
	n.state.Set(chord.Left)
	n.stopTasks()
	n.logger.Info("Chord node stopped")
}
