package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service exchanges google.protobuf.Struct messages; field names are
// documented on Handler.
const (
	ServiceName                = "vaultpay.v1.TransferService"
	FullMethodTransfer         = "/" + ServiceName + "/Transfer"
	FullMethodListTransactions = "/" + ServiceName + "/ListTransactions"

	// ReplayedHeader is set in the response header when the result is a replay.
	ReplayedHeader = "idempotent-replayed"
	// ErrorKindTrailer carries the transfer error kind on failed calls.
	ErrorKindTrailer = "error-kind"
)

type TransferServiceServer interface {
	Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterTransferServiceServer(s grpc.ServiceRegistrar, srv TransferServiceServer) {
	s.RegisterService(&TransferServiceDesc, srv)
}

var TransferServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransferServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transfer", Handler: transferHandler},
		{MethodName: "ListTransactions", Handler: listTransactionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vaultpay/v1/transfer.proto",
}

func transferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransferServiceServer).Transfer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodTransfer}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransferServiceServer).Transfer(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listTransactionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransferServiceServer).ListTransactions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodListTransactions}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransferServiceServer).ListTransactions(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
