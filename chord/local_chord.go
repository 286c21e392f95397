package chord

import (
	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"go.uber.org/zap"
)

// ClosestPrecedingFinger returns the finger whose identifier lies strictly between
// us and target that is nearest to target, or ourselves when none does.
func (n *LocalNode) ClosestPrecedingFinger(target uint64) (chord.VNode, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	return n.closestPrecedingFinger(target), nil
}

func (n *LocalNode) closestPrecedingFinger(target uint64) chord.VNode {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := len(n.fingers) - 1; i >= 0; i-- {
		finger := n.fingers[i]
		if finger == nil {
			continue
		}
		if chord.BetweenStrict(n.ID(), finger.ID(), target) {
			return finger
		}
	}
	return n
}

// FindSuccessor walks the ring towards target without holding the node lock,
// asking each hop for its successor and closest preceding finger.
func (n *LocalNode) FindSuccessor(target uint64) (chord.VNode, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}

	var (
		curr     chord.VNode = n
		fallback chord.VNode
	)

	for hop := 0; hop < n.MaxHops; hop++ {
		succ, err := curr.GetSuccessor()
		if err != nil {
			// a stale finger, retry from the successor of the previous hop
			if fallback != nil && fallback.ID() != curr.ID() {
				n.logger.Debug("Finger unreachable during lookup, falling back to successor",
					zap.Object("finger", curr.Identity()),
					zap.Object("successor", fallback.Identity()),
					zap.Error(err),
				)
				curr, fallback = fallback, nil
				continue
			}
			return nil, err
		}
		if succ == nil {
			return nil, chord.ErrNodeNoSuccessor
		}
		if chord.BetweenInclusiveHigh(curr.ID(), target, succ.ID()) {
			return succ, nil
		}

		next, err := curr.ClosestPrecedingFinger(target)
		if err != nil {
			return nil, err
		}
		if next == nil || next.ID() == curr.ID() {
			curr, fallback = succ, nil
			continue
		}
		curr, fallback = next, succ
	}

	n.logger.Warn("Lookup exceeded hop limit", zap.Uint64("target", target), zap.Int("maxHops", n.MaxHops))

	return nil, chord.ErrRingUnreachable
}

// Notify is invoked by a node that believes it is our predecessor. When the candidate
// ends up as our predecessor, the bindings it now owns are returned as Transfer. They
// stay here until the candidate calls DropBindings, so a repeated Notify ships them again.
func (n *LocalNode) Notify(candidate chord.VNode) (*protocol.NotifyResponse, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, chord.ErrNodeNil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &protocol.NotifyResponse{}

	if candidate.ID() != n.ID() {
		old := n.predecessor
		if old == nil || chord.BetweenStrict(old.ID(), candidate.ID(), n.ID()) {
			n.predecessor = candidate
			resp.Adopted = true
			if old == nil {
				n.logger.Info("Discovered new predecessor via Notify",
					zap.String("old", "nil"),
					zap.Object("new", candidate.Identity()),
				)
			} else {
				n.logger.Info("Discovered new predecessor via Notify",
					zap.Object("old", old.Identity()),
					zap.Object("new", candidate.Identity()),
				)
			}
		}
		if n.predecessor.ID() == candidate.ID() {
			resp.Transfer = n.extractBindings(candidate.ID())
		}
	}
	resp.Backup = n.extractAllBindings()

	return resp, nil
}
