package chord

import (
	"context"
	"fmt"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"go.uber.org/zap"
)

var _ chord.BindingStorage = (*LocalNode)(nil)

func (n *LocalNode) Get(ctx context.Context, key string) ([]string, error) {
	return routedGet(ctx, n, n.Space, key)
}

func (n *LocalNode) Add(ctx context.Context, key, value string) error {
	return routedAdd(ctx, n, n.Space, key, value)
}

func (n *LocalNode) Delete(ctx context.Context, key, value string) error {
	return routedDelete(ctx, n, n.Space, key, value)
}

// must be called with n.mu held
func (n *LocalNode) ownershipCheck(key string) error {
	if n.predecessor == nil || n.predecessor.ID() == n.ID() {
		return nil
	}
	if !chord.BetweenInclusiveHigh(n.predecessor.ID(), n.Space.HashString(key), n.ID()) {
		return chord.ErrKVStaleOwnership
	}
	return nil
}

func (n *LocalNode) GetBindings(_ context.Context, key string) ([]string, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ownershipCheck(key); err != nil {
		return nil, err
	}
	return n.bindings.Get(key), nil
}

func (n *LocalNode) AddBinding(_ context.Context, key, value string) error {
	if err := n.checkNodeState(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ownershipCheck(key); err != nil {
		return err
	}
	n.bindings.Add(key, value)
	return nil
}

func (n *LocalNode) DeleteBinding(_ context.Context, key, value string) error {
	if err := n.checkNodeState(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ownershipCheck(key); err != nil {
		return err
	}
	n.bindings.Delete(key, value)
	return nil
}

// DropBindings is called by our predecessor once it has installed the bindings
// handed over in Notify.
func (n *LocalNode) DropBindings(_ context.Context, predID uint64) error {
	if err := n.checkNodeState(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// refuse to drop a range that overlaps what we currently own
	if n.predecessor != nil && chord.BetweenStrict(n.predecessor.ID(), predID, n.ID()) {
		n.logger.Warn("Rejecting drop request overlapping owned range",
			zap.Uint64("requested", predID),
			zap.Uint64("predecessor", n.predecessor.ID()),
		)
		return chord.ErrTransferFailure
	}

	dropped := n.dropBindings(predID)
	if dropped > 0 {
		n.logger.Info("Dropped bindings handed over to predecessor", zap.Uint64("predecessor", predID), zap.Int("keys", dropped))
	}
	return nil
}

// ImportBindings merges bindings shipped by a leaving predecessor
func (n *LocalNode) ImportBindings(_ context.Context, incoming *protocol.NodeBindings) error {
	if err := n.checkNodeState(); err != nil {
		return err
	}
	if incoming == nil {
		return chord.ErrNodeNil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.installBindings(incoming)

	if n.predecessor != nil && incoming.GetInfo() != nil && n.predecessor.ID() == incoming.GetInfo().GetId() {
		n.logger.Info("Predecessor handed over its bindings, clearing predecessor",
			zap.Object("predecessor", incoming.GetInfo()),
		)
		n.predecessor = nil
	}

	n.logger.Info("Imported bindings", zap.Object("from", incoming))

	return nil
}

// extractBindings returns the bindings whose identifier is outside (predID, self], which
// belong to predID once it becomes our predecessor. Must be called with n.mu held.
func (n *LocalNode) extractBindings(predID uint64) *protocol.NodeBindings {
	ret := &protocol.NodeBindings{
		Info:     n.Identity(),
		Succ:     n.successor.Identity(),
		Bindings: []*protocol.KeyBindings{},
	}
	if predID == n.ID() {
		return ret
	}
	keys := n.bindings.RangeKeys(n.ID(), predID)
	ret.Bindings = n.bindings.Export(keys)
	return ret
}

// must be called with n.mu held
func (n *LocalNode) extractAllBindings() *protocol.NodeBindings {
	keys := n.bindings.RangeKeys(0, 0)
	return &protocol.NodeBindings{
		Info:     n.Identity(),
		Succ:     n.successor.Identity(),
		Bindings: n.bindings.Export(keys),
	}
}

// dropBindings removes exactly what extractBindings(predID) returns. Must be called with n.mu held
func (n *LocalNode) dropBindings(predID uint64) int {
	if predID == n.ID() {
		return 0
	}
	keys := n.bindings.RangeKeys(n.ID(), predID)
	n.bindings.RemoveKeys(keys)
	return len(keys)
}

// must be called with n.mu held
func (n *LocalNode) installBindings(incoming *protocol.NodeBindings) {
	n.bindings.Import(incoming.GetBindings())
}

// backupBindings replaces the backup copy with the successor's bindings. Must be called with n.mu held
func (n *LocalNode) backupBindings(incoming *protocol.NodeBindings) {
	n.backup.Clear()
	n.backup.Import(incoming.GetBindings())
	n.backupSucc = incoming.GetSucc()
}

func (n *LocalNode) clearBindings() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindings.Clear()
	n.backup.Clear()
}

// exportBackup packages the backup copy on behalf of owner, the successor it was taken from
func (n *LocalNode) exportBackup(owner *protocol.Node) *protocol.NodeBindings {
	n.mu.Lock()
	defer n.mu.Unlock()
	keys := n.backup.RangeKeys(0, 0)
	return &protocol.NodeBindings{
		Info:     owner,
		Succ:     n.backupSucc,
		Bindings: n.backup.Export(keys),
	}
}

func transferError(err error) error {
	return fmt.Errorf("%w: %w", chord.ErrTransferFailure, err)
}
