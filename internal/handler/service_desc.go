package handler

import (
	"context"

	"google.golang.org/grpc"

	"campus-care-api/internal/wire"
)

const ServiceName = "care.v1.CareService"

// FullMethod returns the gRPC path of an RPC, e.g. /care.v1.CareService/SignIn.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

type CareServiceServer interface {
	SignUp(context.Context, *wire.SignUpRequest) (*wire.AuthResponse, error)
	SignIn(context.Context, *wire.SignInRequest) (*wire.AuthResponse, error)
	Refresh(context.Context, *wire.RefreshRequest) (*wire.AuthResponse, error)
	SignOut(context.Context, *wire.Empty) (*wire.Empty, error)
	WhoAmI(context.Context, *wire.Empty) (*wire.Profile, error)
	Authorize(context.Context, *wire.AuthorizeRequest) (*wire.AuthorizeResponse, error)

	FindOrCreateChannel(context.Context, *wire.FindOrCreateChannelRequest) (*wire.ChannelResponse, error)
	WatchChannels(*wire.Empty, grpc.ServerStream) error
	AppendMessage(context.Context, *wire.AppendMessageRequest) (*wire.Message, error)
	SubscribeMessages(*wire.SubscribeMessagesRequest, grpc.ServerStream) error

	CreateAppointment(context.Context, *wire.CreateAppointmentRequest) (*wire.Appointment, error)
	DecideAppointment(context.Context, *wire.DecideAppointmentRequest) (*wire.Appointment, error)
	WatchAppointments(*wire.WatchAppointmentsRequest, grpc.ServerStream) error

	WatchNotifications(*wire.Empty, grpc.ServerStream) error
	MarkNotificationRead(context.Context, *wire.NotificationRef) (*wire.Empty, error)
	DismissNotification(context.Context, *wire.NotificationRef) (*wire.Empty, error)
	RaiseEmergency(context.Context, *wire.RaiseEmergencyRequest) (*wire.Empty, error)

	SearchProviders(context.Context, *wire.SearchProvidersRequest) (*wire.ProfileList, error)
}

// ServiceDesc must be served with wire.Codec forced as the server codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CareServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SignUp", CareServiceServer.SignUp),
		unary("SignIn", CareServiceServer.SignIn),
		unary("Refresh", CareServiceServer.Refresh),
		unary("SignOut", CareServiceServer.SignOut),
		unary("WhoAmI", CareServiceServer.WhoAmI),
		unary("Authorize", CareServiceServer.Authorize),
		unary("FindOrCreateChannel", CareServiceServer.FindOrCreateChannel),
		unary("AppendMessage", CareServiceServer.AppendMessage),
		unary("CreateAppointment", CareServiceServer.CreateAppointment),
		unary("DecideAppointment", CareServiceServer.DecideAppointment),
		unary("MarkNotificationRead", CareServiceServer.MarkNotificationRead),
		unary("DismissNotification", CareServiceServer.DismissNotification),
		unary("RaiseEmergency", CareServiceServer.RaiseEmergency),
		unary("SearchProviders", CareServiceServer.SearchProviders),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchChannels", CareServiceServer.WatchChannels),
		serverStream("SubscribeMessages", CareServiceServer.SubscribeMessages),
		serverStream("WatchAppointments", CareServiceServer.WatchAppointments),
		serverStream("WatchNotifications", CareServiceServer.WatchNotifications),
	},
	Metadata: "care/v1/care.proto",
}

func Register(s grpc.ServiceRegistrar, srv CareServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req any, PReq interface {
	*Req
	wire.Payload
}, Resp wire.Payload](name string, call func(CareServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	full := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CareServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(PReq))
			})
		},
	}
}

func serverStream[Req any, PReq interface {
	*Req
	wire.Payload
}](name string, call func(CareServiceServer, PReq, grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, ss grpc.ServerStream) error {
			in := PReq(new(Req))
			if err := ss.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(CareServiceServer), in, ss)
		},
	}
}
