package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Node identifies a peer: its network address and its position on the ring.
// Two Node with the same Id are the same ring position.
type Node struct {
	Host string `yaml:"host"`
	Port uint32 `yaml:"port"`
	Id   uint64 `yaml:"id"`
}

var _ Message = (*Node)(nil)

func (n *Node) GetHost() string {
	if n == nil {
		return ""
	}
	return n.Host
}

func (n *Node) GetPort() uint32 {
	if n == nil {
		return 0
	}
	return n.Port
}

func (n *Node) GetId() uint64 {
	if n == nil {
		return 0
	}
	return n.Id
}

// GetAddress returns host:port of the node
func (n *Node) GetAddress() string {
	if n == nil {
		return ""
	}
	return net.JoinHostPort(n.Host, strconv.FormatUint(uint64(n.Port), 10))
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.GetAddress() + "/" + strconv.FormatUint(n.Id, 10)
}

func (n *Node) CloneVT() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

func (n *Node) appendVT(b []byte) []byte {
	b = appendString(b, 1, n.Host)
	b = appendVarint(b, 2, uint64(n.Port))
	b = appendVarint(b, 3, n.Id)
	return b
}

func (n *Node) MarshalVT() ([]byte, error) {
	return n.appendVT(nil), nil
}

func (n *Node) UnmarshalVT(dAtA []byte) error {
	return consumeFields(dAtA, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &n.Host)
		case 2:
			var port uint64
			m, err := consumeVarint(typ, b, &port)
			n.Port = uint32(port)
			return m, err
		case 3:
			return consumeVarint(typ, b, &n.Id)
		default:
			return skipField, nil
		}
	})
}

// ParseNode parses "host:port", or "host:port/id" as produced by String
func ParseNode(s string) (*Node, error) {
	var (
		addr = s
		id   uint64
	)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		addr = s[:i]
		v, err := strconv.ParseUint(s[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id in %q: %w", s, err)
		}
		id = v
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid node address %q: %w", s, err)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid node port in %q: %w", s, err)
	}
	return &Node{
		Host: host,
		Port: uint32(p),
		Id:   id,
	}, nil
}
