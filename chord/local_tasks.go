package chord

import (
	"context"
	"fmt"
	"time"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/util"

	"go.uber.org/zap"
)

func (n *LocalNode) stabilize() error {
	succ := n.getSuccessor()
	changed := false

	x, err := succ.GetPredecessor()
	if err != nil {
		next, fErr := n.successorFailover(succ)
		if fErr != nil {
			return fmt.Errorf("successor %s unreachable: %w", succ.Identity(), err)
		}
		n.logger.Warn("Successor unreachable, failing over to its successor",
			zap.Object("old", succ.Identity()),
			zap.Object("new", next.Identity()),
			zap.Error(err),
		)
		n.setSuccessor(next)
		n.restoreBackup(succ, next)
		succ, changed = next, true

		x, err = succ.GetPredecessor()
		if err != nil {
			return err
		}
	}

	if x != nil && x.ID() != succ.ID() && chord.BetweenStrict(n.ID(), x.ID(), succ.ID()) {
		if x.Ping() == nil {
			n.logger.Info("Discovered new successor via Stabilize",
				zap.Object("old", succ.Identity()),
				zap.Object("new", x.Identity()),
			)
			n.setSuccessor(x)
			succ, changed = x, true
		}
	}

	n.lastStabilized.Store(time.Now())

	if changed {
		n.FixFingers()
	}

	if err := n.notifySuccessor(succ); err != nil {
		return fmt.Errorf("notifying successor %s: %w", succ.Identity(), err)
	}

	return nil
}

// successorFailover picks the node to use when the successor stops responding: the
// successor's successor learned from the last notify, or ourselves when there is none.
func (n *LocalNode) successorFailover(dead chord.VNode) (chord.VNode, error) {
	backupSucc := n.getBackupSucc()
	if backupSucc == nil || backupSucc.GetId() == dead.ID() {
		if dead.ID() == n.ID() {
			return nil, chord.ErrNodeNoSuccessor
		}
		return n, nil
	}
	next, err := n.resolve(backupSucc)
	if err != nil {
		return nil, err
	}
	if next.ID() != n.ID() {
		if err := next.Ping(); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// restoreBackup hands our copy of the failed successor's bindings to its replacement,
// which now owns that range.
func (n *LocalNode) restoreBackup(dead, next chord.VNode) {
	backup := n.exportBackup(dead.Identity())
	if len(backup.GetBindings()) == 0 {
		return
	}

	if next.ID() == n.ID() {
		n.mu.Lock()
		n.installBindings(backup)
		n.backup.Clear()
		n.backupSucc = nil
		n.mu.Unlock()
		n.logger.Info("Restored backup bindings locally", zap.Int("keys", len(backup.GetBindings())))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.RPCTimeout)
	defer cancel()

	if err := next.ImportBindings(ctx, backup); err != nil {
		n.logger.Error("Failed to restore backup bindings on new successor",
			zap.Object("successor", next.Identity()),
			zap.Error(err),
		)
		return
	}
	n.logger.Info("Restored backup bindings on new successor",
		zap.Object("successor", next.Identity()),
		zap.Int("keys", len(backup.GetBindings())),
	)
}

func (n *LocalNode) fixFinger(i int) (updated bool, err error) {
	n.checkFingerIndex(i)

	var f chord.VNode
	f, err = n.FindSuccessor(n.Space.FingerStart(n.ID(), i))
	if err != nil {
		return
	}
	if f == nil {
		err = fmt.Errorf("no successor found for finger %d", i)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if curr := n.fingers[i]; curr == nil || curr.ID() != f.ID() {
		n.fingers[i] = f
		updated = true
	}
	return
}

// FixFingers refreshes every finger entry except finger[0], which follows the successor.
func (n *LocalNode) FixFingers() error {
	var (
		fixed  = make([]int, 0)
		failed = 0
		last   error
	)
	for i := 1; i < n.Space.Fingers(); i++ {
		changed, err := n.fixFinger(i)
		if err != nil {
			failed++
			last = err
			continue
		}
		if changed {
			fixed = append(fixed, i)
		}
	}
	if len(fixed) > 0 {
		n.logger.Debug("FingerTable entries updated", zap.Ints("fixed", fixed))
	}
	if failed > 0 {
		return fmt.Errorf("failed to fix %d finger entries: %w", failed, last)
	}
	return nil
}

func (n *LocalNode) checkPredecessor() error {
	pre := n.getPredecessor()
	if pre == nil || pre.ID() == n.ID() {
		return nil
	}

	err := pre.Ping()
	if err != nil {
		n.mu.Lock()
		if n.predecessor == pre {
			n.predecessor = nil
			n.logger.Info("Discovered dead predecessor",
				zap.Object("old", pre.Identity()),
				zap.String("new", "nil"),
			)
		}
		n.mu.Unlock()
	}
	return err
}

func (n *LocalNode) periodicStabilize() {
	defer n.stopWg.Done()

	for {
		select {
		case <-n.stopCh:
			n.logger.Debug("Stopping Stabilize task")
			return
		case <-time.After(util.RandomTimeRange(n.StabilizeInterval)):
			if err := n.stabilize(); err != nil {
				n.logger.Error("Stabilize task", zap.Error(err))
			}
		}
	}
}

func (n *LocalNode) periodicPredecessorCheck() {
	defer n.stopWg.Done()

	for {
		select {
		case <-n.stopCh:
			n.logger.Debug("Stopping predecessor checking task")
			return
		case <-time.After(util.RandomTimeRange(n.PredecessorCheckInterval)):
			n.checkPredecessor()
		}
	}
}

func (n *LocalNode) startTasks() {
	n.stopWg.Add(2)
	go n.periodicStabilize()
	go n.periodicPredecessorCheck()
}

func (n *LocalNode) stopTasks() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})
	n.stopWg.Wait()
}
