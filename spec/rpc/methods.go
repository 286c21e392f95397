package rpc

const (
	// PathPrefix is the route prefix shared by every ring RPC. Each method is served
	// at PathPrefix + method, as a POST with a protobuf body.
	PathPrefix = "/twirp/dht.Node/"

	ContentType = "application/protobuf"
)

const (
	MethodIdentity               = "Identity"
	MethodPing                   = "Ping"
	MethodGetPredecessor         = "GetPredecessor"
	MethodGetSuccessor           = "GetSuccessor"
	MethodClosestPrecedingFinger = "ClosestPrecedingFinger"
	MethodFindSuccessor          = "FindSuccessor"
	MethodNotify                 = "Notify"
	MethodGetBindings            = "GetBindings"
	MethodAddBinding             = "AddBinding"
	MethodDeleteBinding          = "DeleteBinding"
	MethodDropBindings           = "DropBindings"
	MethodImportBindings         = "ImportBindings"
)

var Methods = []string{
	MethodIdentity,
	MethodPing,
	MethodGetPredecessor,
	MethodGetSuccessor,
	MethodClosestPrecedingFinger,
	MethodFindSuccessor,
	MethodNotify,
	MethodGetBindings,
	MethodAddBinding,
	MethodDeleteBinding,
	MethodDropBindings,
	MethodImportBindings,
}
