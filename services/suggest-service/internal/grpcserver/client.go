package grpcserver

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls SlotService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ComputeSlots(ctx context.Context, spec model.AvailabilitySpec, maxSlots int, opts ...grpc.CallOption) ([]slots.WireSlot, error) {
	raw, err := json.Marshal(computeRequest{Availability: &spec, MaxSlots: maxSlots})
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ComputeSlotsMethod, in, out, opts...); err != nil {
		return nil, err
	}

	raw, err = json.Marshal(out.AsMap())
	if err != nil {
		return nil, err
	}
	var resp struct {
		Slots []slots.WireSlot `json:"slots"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Slots, nil
}
