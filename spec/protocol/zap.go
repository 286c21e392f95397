package protocol

import "go.uber.org/zap/zapcore"

var _ zapcore.ObjectMarshaler = (*Node)(nil)
var _ zapcore.ObjectMarshaler = (*NodeBindings)(nil)

func (n *Node) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if n.GetHost() != "" {
		enc.AddString("address", n.GetAddress())
	}
	enc.AddUint64("id", n.GetId())
	return nil
}

func (d *NodeBindings) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if info := d.GetInfo(); info != nil {
		enc.AddObject("info", info)
	}
	if succ := d.GetSucc(); succ != nil {
		enc.AddObject("succ", succ)
	}
	enc.AddInt("keys", len(d.GetBindings()))
	return nil
}
