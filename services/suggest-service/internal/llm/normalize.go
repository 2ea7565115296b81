package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
)

const schemaDescription = `
The JSON must have exactly these fields (all required except noted):
- provider_id: string
- timezone: string (IANA e.g. America/New_York)
- slot_length_minutes: int (default 30)
- buffer_minutes: int (default 10)
- business_hours: {"start": "HH:MM", "end": "HH:MM"}
- date_range: {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD"}
- existing_appointments: [{"start": "ISO8601", "end": "ISO8601"}]
- preferred_days: [0-6] (0=Monday, 6=Sunday)
- preferred_times: [{"start": "HH:MM", "end": "HH:MM"}]
`

// SpecCache stores normalized specs keyed by the free text they came from.
type SpecCache interface {
	Get(ctx context.Context, text string) (model.AvailabilitySpec, bool, error)
	Put(ctx context.Context, text string, spec model.AvailabilitySpec) error
}

// NormalizeResult carries either a valid Spec or, when the model could not
// produce one after the repair round, the reason in Failure.
type NormalizeResult struct {
	Spec     model.AvailabilitySpec
	Failure  string
	Attempts int
	Cached   bool
}

func (r NormalizeResult) OK() bool { return r.Failure == "" }

type NormalizerOptions struct {
	MaxSpanDays int
	Cache       SpecCache
	Logger      *slog.Logger
}

type Normalizer struct {
	chat        Chatter
	maxSpanDays int
	cache       SpecCache
	logger      *slog.Logger
}

func NewNormalizer(chat Chatter, opts NormalizerOptions) *Normalizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{chat: chat, maxSpanDays: opts.MaxSpanDays, cache: opts.Cache, logger: logger}
}

// Normalize turns free text into a validated AvailabilitySpec. Invalid model
// output gets exactly one repair round. Transport failures, including a
// missing API key, are returned as errors.
func (n *Normalizer) Normalize(ctx context.Context, text string) (NormalizeResult, error) {
	if n.cache != nil {
		spec, ok, err := n.cache.Get(ctx, text)
		if err != nil {
			n.logger.Warn("normalize cache get failed", "err", err)
		} else if ok {
			return NormalizeResult{Spec: spec, Cached: true}, nil
		}
	}

	messages := []Message{{Role: "user", Content: fmt.Sprintf(`Convert the following availability description into a strict JSON object.
%s
Return ONLY valid JSON, no markdown, no explanation.

Availability text:
%s
`, schemaDescription, text)}}

	raw, err := n.chat.Chat(ctx, messages)
	if err != nil {
		return NormalizeResult{}, err
	}
	spec, perr := n.decode(raw)
	attempts := 1
	if perr != nil {
		n.logger.Info("normalizer output rejected, retrying", "err", perr)
		messages = append(messages,
			Message{Role: "assistant", Content: raw},
			Message{Role: "user", Content: fmt.Sprintf(`The previous JSON was invalid. Error: %v
Original text: %s

Fix the JSON to match the schema. Return ONLY valid JSON.
%s
`, perr, text, schemaDescription)},
		)
		raw, err = n.chat.Chat(ctx, messages)
		if err != nil {
			return NormalizeResult{}, err
		}
		attempts++
		spec, perr = n.decode(raw)
		if perr != nil {
			return NormalizeResult{Failure: perr.Error(), Attempts: attempts}, nil
		}
	}

	if n.cache != nil {
		if err := n.cache.Put(ctx, text, spec); err != nil {
			n.logger.Warn("normalize cache put failed", "err", err)
		}
	}
	return NormalizeResult{Spec: spec, Attempts: attempts}, nil
}

func (n *Normalizer) decode(raw string) (model.AvailabilitySpec, error) {
	var spec model.AvailabilitySpec
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &spec); err != nil {
		return spec, fmt.Errorf("decode availability json: %w", err)
	}
	if err := model.Validate(spec, n.maxSpanDays); err != nil {
		return spec, err
	}
	return spec, nil
}
