package chord

import (
	"context"

	"go.miragespace.co/dht/rpc"
	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	rpcSpec "go.miragespace.co/dht/spec/rpc"
)

// Server exposes a node to other processes. Factory turns identities received in
// requests into callable handles.
type Server struct {
	LocalNode chord.VNode
	Factory   RemoteNodeFactory
}

func empty() *protocol.Empty {
	return &protocol.Empty{}
}

func idRequest() *protocol.IdRequest {
	return &protocol.IdRequest{}
}

func bindingRequest() *protocol.BindingRequest {
	return &protocol.BindingRequest{}
}

func nodeResponse(vnode chord.VNode) *protocol.NodeResponse {
	if vnode == nil {
		return &protocol.NodeResponse{}
	}
	return &protocol.NodeResponse{
		Node: vnode.Identity(),
	}
}

// Register mounts every ring RPC on srv
func (s *Server) Register(srv *rpc.Server) {
	rpc.Register(srv, rpcSpec.MethodIdentity, empty, s.Identity)
	rpc.Register(srv, rpcSpec.MethodPing, empty, s.Ping)
	rpc.Register(srv, rpcSpec.MethodGetPredecessor, empty, s.GetPredecessor)
	rpc.Register(srv, rpcSpec.MethodGetSuccessor, empty, s.GetSuccessor)
	rpc.Register(srv, rpcSpec.MethodClosestPrecedingFinger, idRequest, s.ClosestPrecedingFinger)
	rpc.Register(srv, rpcSpec.MethodFindSuccessor, idRequest, s.FindSuccessor)
	rpc.Register(srv, rpcSpec.MethodNotify, func() *protocol.NotifyRequest {
		return &protocol.NotifyRequest{}
	}, s.Notify)
	rpc.Register(srv, rpcSpec.MethodGetBindings, bindingRequest, s.GetBindings)
	rpc.Register(srv, rpcSpec.MethodAddBinding, bindingRequest, s.AddBinding)
	rpc.Register(srv, rpcSpec.MethodDeleteBinding, bindingRequest, s.DeleteBinding)
	rpc.Register(srv, rpcSpec.MethodDropBindings, idRequest, s.DropBindings)
	rpc.Register(srv, rpcSpec.MethodImportBindings, func() *protocol.NodeBindings {
		return &protocol.NodeBindings{}
	}, s.ImportBindings)
}

func (s *Server) Identity(_ context.Context, _ *protocol.Empty) (protocol.Message, error) {
	return nodeResponse(s.LocalNode), nil
}

func (s *Server) Ping(_ context.Context, _ *protocol.Empty) (protocol.Message, error) {
	if err := s.LocalNode.Ping(); err != nil {
		return nil, err
	}
	return &protocol.Empty{}, nil
}

func (s *Server) GetPredecessor(_ context.Context, _ *protocol.Empty) (protocol.Message, error) {
	vnode, err := s.LocalNode.GetPredecessor()
	if err != nil {
		return nil, err
	}
	return nodeResponse(vnode), nil
}

func (s *Server) GetSuccessor(_ context.Context, _ *protocol.Empty) (protocol.Message, error) {
	vnode, err := s.LocalNode.GetSuccessor()
	if err != nil {
		return nil, err
	}
	return nodeResponse(vnode), nil
}

func (s *Server) ClosestPrecedingFinger(_ context.Context, req *protocol.IdRequest) (protocol.Message, error) {
	vnode, err := s.LocalNode.ClosestPrecedingFinger(req.GetId())
	if err != nil {
		return nil, err
	}
	return nodeResponse(vnode), nil
}

func (s *Server) FindSuccessor(_ context.Context, req *protocol.IdRequest) (protocol.Message, error) {
	vnode, err := s.LocalNode.FindSuccessor(req.GetId())
	if err != nil {
		return nil, err
	}
	return nodeResponse(vnode), nil
}

func (s *Server) Notify(_ context.Context, req *protocol.NotifyRequest) (protocol.Message, error) {
	predecessor := req.GetPredecessor()
	if predecessor == nil {
		return nil, chord.ErrNodeNil
	}

	vnode, err := s.Factory(predecessor)
	if err != nil {
		return nil, err
	}
	return s.LocalNode.Notify(vnode)
}

func (s *Server) GetBindings(ctx context.Context, req *protocol.BindingRequest) (protocol.Message, error) {
	values, err := s.LocalNode.GetBindings(ctx, req.GetKey())
	if err != nil {
		return nil, rpcSpec.WrapErrorKV(req.GetKey(), err)
	}
	return &protocol.BindingResponse{
		Values: values,
	}, nil
}

func (s *Server) AddBinding(ctx context.Context, req *protocol.BindingRequest) (protocol.Message, error) {
	if err := s.LocalNode.AddBinding(ctx, req.GetKey(), req.GetValue()); err != nil {
		return nil, rpcSpec.WrapErrorKV(req.GetKey(), err)
	}
	return &protocol.Empty{}, nil
}

func (s *Server) DeleteBinding(ctx context.Context, req *protocol.BindingRequest) (protocol.Message, error) {
	if err := s.LocalNode.DeleteBinding(ctx, req.GetKey(), req.GetValue()); err != nil {
		return nil, rpcSpec.WrapErrorKV(req.GetKey(), err)
	}
	return &protocol.Empty{}, nil
}

func (s *Server) DropBindings(ctx context.Context, req *protocol.IdRequest) (protocol.Message, error) {
	if err := s.LocalNode.DropBindings(ctx, req.GetId()); err != nil {
		return nil, err
	}
	return &protocol.Empty{}, nil
}

func (s *Server) ImportBindings(ctx context.Context, req *protocol.NodeBindings) (protocol.Message, error) {
	if err := s.LocalNode.ImportBindings(ctx, req); err != nil {
		return nil, err
	}
	return &protocol.Empty{}, nil
}
