package grpcserver

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "slotsuggest.v1.SlotService"
	ComputeSlotsMethod = "/" + ServiceName + "/ComputeSlots"
)

// SlotServiceServer exchanges google.protobuf.Struct messages:
//
//	request:  {"availability": {...}, "max_slots": 5}
//	response: {"slots": [{"start_iso", "end_iso", "provider_id"}]}
type SlotServiceServer interface {
	ComputeSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SlotServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeSlots", Handler: computeSlotsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotsuggest/v1/slots.proto",
}

func computeSlotsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SlotServiceServer).ComputeSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ComputeSlotsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SlotServiceServer).ComputeSlots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type server struct {
	defaultMax  int
	maxSpanDays int
}

// Register installs the slot service and a health service reporting it as
// serving.
func Register(grpcServer *grpc.Server, defaultMax, maxSpanDays int) *health.Server {
	if defaultMax <= 0 {
		defaultMax = 5
	}
	grpcServer.RegisterService(&ServiceDesc, &server{defaultMax: defaultMax, maxSpanDays: maxSpanDays})

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

type computeRequest struct {
	Availability *model.AvailabilitySpec `json:"availability"`
	MaxSlots     int                     `json:"max_slots"`
}

func (s *server) ComputeSlots(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var req computeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if req.Availability == nil {
		return nil, status.Error(codes.InvalidArgument, "availability is required")
	}
	if err := model.Validate(*req.Availability, s.maxSpanDays); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	limit := req.MaxSlots
	if limit <= 0 {
		limit = s.defaultMax
	}

	candidates, err := slots.ComputeSlots(*req.Availability, limit)
	if err != nil {
		var tzErr *slots.TimezoneError
		if errors.As(err, &tzErr) {
			return nil, status.Error(codes.InvalidArgument, tzErr.Error())
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return SlotsToStruct(candidates)
}

// SlotsToStruct builds the ComputeSlots response message.
func SlotsToStruct(candidates []slots.CandidateSlot) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(candidates))
	for _, c := range candidates {
		w := c.Wire()
		list = append(list, map[string]interface{}{
			"start_iso":   w.StartISO,
			"end_iso":     w.EndISO,
			"provider_id": w.ProviderID,
		})
	}
	return structpb.NewStruct(map[string]interface{}{"slots": list})
}
