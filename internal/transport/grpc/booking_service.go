package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "slotbook.v1.BookingService"

// BookingServiceServer is the server side of slotbook.v1.BookingService.
type BookingServiceServer interface {
	ListFreeSlots(context.Context, *ListFreeSlotsRequest) (*ListFreeSlotsResponse, error)
	FindChains(context.Context, *FindChainsRequest) (*FindChainsResponse, error)
	CreateAppointment(context.Context, *CreateAppointmentRequest) (*CreateAppointmentResponse, error)
	UpdateAppointment(context.Context, *UpdateAppointmentRequest) (*UpdateAppointmentResponse, error)
	CancelAppointment(context.Context, *CancelAppointmentRequest) (*CancelAppointmentResponse, error)
	DeleteSlot(context.Context, *DeleteSlotRequest) (*DeleteSlotResponse, error)
	InsertSlots(context.Context, *InsertSlotsRequest) (*InsertSlotsResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListFreeSlots", Handler: unaryHandler("ListFreeSlots", BookingServiceServer.ListFreeSlots)},
		{MethodName: "FindChains", Handler: unaryHandler("FindChains", BookingServiceServer.FindChains)},
		{MethodName: "CreateAppointment", Handler: unaryHandler("CreateAppointment", BookingServiceServer.CreateAppointment)},
		{MethodName: "UpdateAppointment", Handler: unaryHandler("UpdateAppointment", BookingServiceServer.UpdateAppointment)},
		{MethodName: "CancelAppointment", Handler: unaryHandler("CancelAppointment", BookingServiceServer.CancelAppointment)},
		{MethodName: "DeleteSlot", Handler: unaryHandler("DeleteSlot", BookingServiceServer.DeleteSlot)},
		{MethodName: "InsertSlots", Handler: unaryHandler("InsertSlots", BookingServiceServer.InsertSlots)},
		{MethodName: "ListAppointments", Handler: unaryHandler("ListAppointments", BookingServiceServer.ListAppointments)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingClient calls slotbook.v1.BookingService with the JSON codec.
type BookingClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingClient(cc grpc.ClientConnInterface) *BookingClient {
	return &BookingClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) ListFreeSlots(ctx context.Context, in *ListFreeSlotsRequest, opts ...grpc.CallOption) (*ListFreeSlotsResponse, error) {
	return invoke[ListFreeSlotsResponse](ctx, c.cc, "ListFreeSlots", in, opts)
}

func (c *BookingClient) FindChains(ctx context.Context, in *FindChainsRequest, opts ...grpc.CallOption) (*FindChainsResponse, error) {
	return invoke[FindChainsResponse](ctx, c.cc, "FindChains", in, opts)
}

func (c *BookingClient) CreateAppointment(ctx context.Context, in *CreateAppointmentRequest, opts ...grpc.CallOption) (*CreateAppointmentResponse, error) {
	return invoke[CreateAppointmentResponse](ctx, c.cc, "CreateAppointment", in, opts)
}

func (c *BookingClient) UpdateAppointment(ctx context.Context, in *UpdateAppointmentRequest, opts ...grpc.CallOption) (*UpdateAppointmentResponse, error) {
	return invoke[UpdateAppointmentResponse](ctx, c.cc, "UpdateAppointment", in, opts)
}

func (c *BookingClient) CancelAppointment(ctx context.Context, in *CancelAppointmentRequest, opts ...grpc.CallOption) (*CancelAppointmentResponse, error) {
	return invoke[CancelAppointmentResponse](ctx, c.cc, "CancelAppointment", in, opts)
}

func (c *BookingClient) DeleteSlot(ctx context.Context, in *DeleteSlotRequest, opts ...grpc.CallOption) (*DeleteSlotResponse, error) {
	return invoke[DeleteSlotResponse](ctx, c.cc, "DeleteSlot", in, opts)
}

func (c *BookingClient) InsertSlots(ctx context.Context, in *InsertSlotsRequest, opts ...grpc.CallOption) (*InsertSlotsResponse, error) {
	return invoke[InsertSlotsResponse](ctx, c.cc, "InsertSlots", in, opts)
}

func (c *BookingClient) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, "ListAppointments", in, opts)
}
