package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// KeyBindings is every value bound to a key, in insertion order. Values may repeat.
type KeyBindings struct {
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
}

var _ Message = (*KeyBindings)(nil)

func (k *KeyBindings) GetKey() string {
	if k == nil {
		return ""
	}
	return k.Key
}

func (k *KeyBindings) GetValues() []string {
	if k == nil {
		return nil
	}
	return k.Values
}

func (k *KeyBindings) appendVT(b []byte) []byte {
	b = appendString(b, 1, k.Key)
	b = appendRepeatedString(b, 2, k.Values)
	return b
}

func (k *KeyBindings) MarshalVT() ([]byte, error) {
	return k.appendVT(nil), nil
}

func (k *KeyBindings) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &k.Key)
		case 2:
			var v string
			m, err := consumeString(typ, b, &v)
			if err == nil && m != skipField {
				k.Values = append(k.Values, v)
			}
			return m, err
		default:
			return skipField, nil
		}
	})
}

// NodeBindings packages a set of bindings together with the node that produced them
// and that node's successor at the time.
type NodeBindings struct {
	Info     *Node          `yaml:"info"`
	Succ     *Node          `yaml:"succ"`
	Bindings []*KeyBindings `yaml:"bindings"`
}

var _ Message = (*NodeBindings)(nil)

func (d *NodeBindings) GetInfo() *Node {
	if d == nil {
		return nil
	}
	return d.Info
}

func (d *NodeBindings) GetSucc() *Node {
	if d == nil {
		return nil
	}
	return d.Succ
}

func (d *NodeBindings) GetBindings() []*KeyBindings {
	if d == nil {
		return nil
	}
	return d.Bindings
}

func (d *NodeBindings) appendVT(b []byte) []byte {
	if d.Info != nil {
		b = appendEmbedded(b, 1, d.Info.appendVT(nil))
	}
	if d.Succ != nil {
		b = appendEmbedded(b, 2, d.Succ.appendVT(nil))
	}
	for _, kb := range d.Bindings {
		if kb == nil {
			continue
		}
		b = appendEmbedded(b, 3, kb.appendVT(nil))
	}
	return b
}

func (d *NodeBindings) MarshalVT() ([]byte, error) {
	return d.appendVT(nil), nil
}

func (d *NodeBindings) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			d.Info = &Node{}
			return consumeEmbedded(typ, b, d.Info)
		case 2:
			d.Succ = &Node{}
			return consumeEmbedded(typ, b, d.Succ)
		case 3:
			kb := &KeyBindings{}
			m, err := consumeEmbedded(typ, b, kb)
			if err == nil && m != skipField {
				d.Bindings = append(d.Bindings, kb)
			}
			return m, err
		default:
			return skipField, nil
		}
	})
}
