// Package protocol describes the grpc price stream. Messages are well-known
// protobuf types, so no generated code is needed.
package protocol

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Names of the service and its method
const (
	PricesServiceName     = "virtualtrader.Prices"
	PricesSubscribeMethod = "/virtualtrader.Prices/Subscribe"
)

// PricesServer is the server API for Prices service
type PricesServer interface {
	// Subscribe streams quotes, one message per ticker, until the client leaves
	Subscribe(*emptypb.Empty, Prices_SubscribeServer) error
}

// Prices_SubscribeServer is the server side of the quote stream
type Prices_SubscribeServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type pricesSubscribeServer struct {
	grpc.ServerStream
}

func (x *pricesSubscribeServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(PricesServer).Subscribe(m, &pricesSubscribeServer{stream})
}

// PricesServiceDesc is the grpc.ServiceDesc for Prices service
var PricesServiceDesc = grpc.ServiceDesc{
	ServiceName: PricesServiceName,
	HandlerType: (*PricesServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "prices.proto",
}

// RegisterPricesServer registers the implementation on the grpc server
func RegisterPricesServer(s grpc.ServiceRegistrar, srv PricesServer) {
	s.RegisterService(&PricesServiceDesc, srv)
}

// PricesClient is the client API for Prices service
type PricesClient interface {
	Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Prices_SubscribeClient, error)
}

// Prices_SubscribeClient is the client side of the quote stream
type Prices_SubscribeClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type pricesClient struct {
	cc grpc.ClientConnInterface
}

// NewPricesClient is constructor
func NewPricesClient(cc grpc.ClientConnInterface) PricesClient {
	return &pricesClient{cc}
}

func (c *pricesClient) Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Prices_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &PricesServiceDesc.Streams[0], PricesSubscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &pricesSubscribeClient{stream}
	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type pricesSubscribeClient struct {
	grpc.ClientStream
}

func (x *pricesSubscribeClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
