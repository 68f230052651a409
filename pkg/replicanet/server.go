// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package replicanet

import (
	"context"

	"google.golang.org/grpc"

	"ambry.io/ambry/pkg/protocol"
)

// ProcessMethod is the full grpc method name of the replica Process call.
const ProcessMethod = "/ambry.replica.Replica/Process"

// ReplicaServer is the handler side of the replica protocol. Datanode
// implementations answer every request envelope with a response
// envelope echoing the request header.
type ReplicaServer interface {
	Process(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// RegisterReplicaServer registers srv with the grpc server.
func RegisterReplicaServer(s *grpc.Server, srv ReplicaServer) {
	s.RegisterService(&replicaServiceDesc, srv)
}

func processHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(protocol.Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ProcessMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplicaServer).Process(ctx, req.(*protocol.Request))
	}
	return interceptor(ctx, in, info, handler)
}

var replicaServiceDesc = grpc.ServiceDesc{
	ServiceName: "ambry.replica.Replica",
	HandlerType: (*ReplicaServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Process",
			Handler:    processHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replicanet",
}
