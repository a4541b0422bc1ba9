package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "timeline.v1.TimelineService"

// Full method names
const (
	SubmitTimelineMethod = "/" + ServiceName + "/SubmitTimeline"
	GetJobStatusMethod   = "/" + ServiceName + "/GetJobStatus"
	ListJobsMethod       = "/" + ServiceName + "/ListJobs"
)

// TimelineServiceServer is the server API for TimelineService. Requests and
// responses are google.protobuf.Struct messages.
type TimelineServiceServer interface {
	SubmitTimeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJobStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTimelineServiceServer registers srv with s
func RegisterTimelineServiceServer(s grpc.ServiceRegistrar, srv TimelineServiceServer) {
	s.RegisterService(&TimelineServiceDesc, srv)
}

func unaryHandler(method string, call func(TimelineServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TimelineServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TimelineServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TimelineServiceDesc describes TimelineService for grpc.Server
var TimelineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TimelineServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitTimeline",
			Handler:    unaryHandler(SubmitTimelineMethod, TimelineServiceServer.SubmitTimeline),
		},
		{
			MethodName: "GetJobStatus",
			Handler:    unaryHandler(GetJobStatusMethod, TimelineServiceServer.GetJobStatus),
		},
		{
			MethodName: "ListJobs",
			Handler:    unaryHandler(ListJobsMethod, TimelineServiceServer.ListJobs),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timeline/v1/timeline.proto",
}

// TimelineServiceClient is the client API for TimelineService
type TimelineServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTimelineServiceClient creates a client over cc
func NewTimelineServiceClient(cc grpc.ClientConnInterface) *TimelineServiceClient {
	return &TimelineServiceClient{cc: cc}
}

func (c *TimelineServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitTimeline queues a timeline job
func (c *TimelineServiceClient) SubmitTimeline(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SubmitTimelineMethod, in, opts...)
}

// GetJobStatus fetches one job
func (c *TimelineServiceClient) GetJobStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetJobStatusMethod, in, opts...)
}

// ListJobs lists jobs
func (c *TimelineServiceClient) ListJobs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ListJobsMethod, in, opts...)
}
