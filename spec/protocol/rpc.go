package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Empty is used by calls without arguments and by plain acknowledgements.
type Empty struct{}

var _ Message = (*Empty)(nil)

func (e *Empty) MarshalVT() ([]byte, error) {
	return []byte{}, nil
}

func (e *Empty) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return skipField, nil
	})
}

// IdRequest carries a ring identifier: the lookup target of FindSuccessor and
// ClosestPrecedingFinger, or the predecessor id of DropBindings.
type IdRequest struct {
	Id uint64
}

var _ Message = (*IdRequest)(nil)

func (r *IdRequest) GetId() uint64 {
	if r == nil {
		return 0
	}
	return r.Id
}

func (r *IdRequest) MarshalVT() ([]byte, error) {
	return appendVarint(nil, 1, r.Id), nil
}

func (r *IdRequest) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeVarint(typ, b, &r.Id)
		}
		return skipField, nil
	})
}

// NodeResponse carries a single node. A nil Node means "unknown".
type NodeResponse struct {
	Node *Node
}

var _ Message = (*NodeResponse)(nil)

func (r *NodeResponse) GetNode() *Node {
	if r == nil {
		return nil
	}
	return r.Node
}

func (r *NodeResponse) MarshalVT() ([]byte, error) {
	if r.Node == nil {
		return []byte{}, nil
	}
	return appendEmbedded(nil, 1, r.Node.appendVT(nil)), nil
}

func (r *NodeResponse) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			r.Node = &Node{}
			return consumeEmbedded(typ, b, r.Node)
		}
		return skipField, nil
	})
}

type NotifyRequest struct {
	Predecessor *Node
}

var _ Message = (*NotifyRequest)(nil)

func (r *NotifyRequest) GetPredecessor() *Node {
	if r == nil {
		return nil
	}
	return r.Predecessor
}

func (r *NotifyRequest) MarshalVT() ([]byte, error) {
	if r.Predecessor == nil {
		return []byte{}, nil
	}
	return appendEmbedded(nil, 1, r.Predecessor.appendVT(nil)), nil
}

func (r *NotifyRequest) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			r.Predecessor = &Node{}
			return consumeEmbedded(typ, b, r.Predecessor)
		}
		return skipField, nil
	})
}

// NotifyResponse is the reply of the notified node. Transfer holds the bindings the
// candidate now owns (present when the candidate is the predecessor), and Backup
// holds a full copy of the notified node's bindings together with its successor.
type NotifyResponse struct {
	Adopted  bool
	Transfer *NodeBindings
	Backup   *NodeBindings
}

var _ Message = (*NotifyResponse)(nil)

func (r *NotifyResponse) GetAdopted() bool {
	if r == nil {
		return false
	}
	return r.Adopted
}

func (r *NotifyResponse) GetTransfer() *NodeBindings {
	if r == nil {
		return nil
	}
	return r.Transfer
}

func (r *NotifyResponse) GetBackup() *NodeBindings {
	if r == nil {
		return nil
	}
	return r.Backup
}

func (r *NotifyResponse) MarshalVT() ([]byte, error) {
	b := appendBool(nil, 1, r.Adopted)
	if r.Transfer != nil {
		b = appendEmbedded(b, 2, r.Transfer.appendVT(nil))
	}
	if r.Backup != nil {
		b = appendEmbedded(b, 3, r.Backup.appendVT(nil))
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func (r *NotifyResponse) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &r.Adopted)
		case 2:
			r.Transfer = &NodeBindings{}
			return consumeEmbedded(typ, b, r.Transfer)
		case 3:
			r.Backup = &NodeBindings{}
			return consumeEmbedded(typ, b, r.Backup)
		default:
			return skipField, nil
		}
	})
}

// BindingRequest addresses a key, or a (key, value) pair for mutations.
type BindingRequest struct {
	Key   string
	Value string
}

var _ Message = (*BindingRequest)(nil)

func (r *BindingRequest) GetKey() string {
	if r == nil {
		return ""
	}
	return r.Key
}

func (r *BindingRequest) GetValue() string {
	if r == nil {
		return ""
	}
	return r.Value
}

func (r *BindingRequest) MarshalVT() ([]byte, error) {
	b := appendString(nil, 1, r.Key)
	b = appendString(b, 2, r.Value)
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func (r *BindingRequest) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &r.Key)
		case 2:
			return consumeString(typ, b, &r.Value)
		default:
			return skipField, nil
		}
	})
}

type BindingResponse struct {
	Values []string
}

var _ Message = (*BindingResponse)(nil)

func (r *BindingResponse) GetValues() []string {
	if r == nil {
		return nil
	}
	return r.Values
}

func (r *BindingResponse) MarshalVT() ([]byte, error) {
	b := appendRepeatedString(nil, 1, r.Values)
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func (r *BindingResponse) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			var v string
			m, err := consumeString(typ, b, &v)
			if err == nil && m != skipField {
				r.Values = append(r.Values, v)
			}
			return m, err
		}
		return skipField, nil
	})
}
