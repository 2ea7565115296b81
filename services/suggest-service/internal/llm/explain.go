package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
)

type Explainer struct {
	chat Chatter
}

func NewExplainer(chat Chatter) *Explainer {
	return &Explainer{chat: chat}
}

// FallbackExplanation is used for every slot when the model's reply cannot
// be read as one string per slot.
func FallbackExplanation(providerID string) string {
	return fmt.Sprintf("Slot fits within business hours and preferred times for provider %s.", providerID)
}

// Explain returns one sentence per slot, in slot order. Only errors from the
// chat call itself are returned.
func (e *Explainer) Explain(ctx context.Context, candidates []slots.CandidateSlot, spec model.AvailabilitySpec) ([]string, error) {
	if len(candidates) == 0 {
		return []string{}, nil
	}

	var list strings.Builder
	for _, s := range candidates {
		fmt.Fprintf(&list, "- %s to %s (provider: %s)\n", s.Start.Format(slots.ISOLayout), s.End.Format(slots.ISOLayout), s.ProviderID)
	}
	prompt := fmt.Sprintf(`Given this availability context:
- Provider: %s
- Timezone: %s
- Business hours: %s-%s
- Preferred days: %v
- Preferred times: %s

These %d slots were suggested:
%s
For each slot (in the same order), write exactly one short sentence (1-2 sentences max) explaining why it was chosen. Return a JSON array of strings, one per slot. Example: ["First slot...", "Second slot...", ...]
Return ONLY the JSON array, no other text.`,
		spec.ProviderID, spec.Timezone, spec.BusinessHours.Start, spec.BusinessHours.End,
		spec.PreferredDays, formatWindows(spec.PreferredTimes), len(candidates), list.String())

	raw, err := e.chat.Chat(ctx, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}

	var parsed []any
	if err := json.Unmarshal([]byte(ExtractJSONArray(raw)), &parsed); err != nil || len(parsed) < len(candidates) {
		return fallback(spec.ProviderID, len(candidates)), nil
	}
	out := make([]string, len(candidates))
	for i := range out {
		if s, ok := parsed[i].(string); ok {
			out[i] = s
		} else {
			out[i] = fmt.Sprint(parsed[i])
		}
	}
	return out, nil
}

func fallback(providerID string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = FallbackExplanation(providerID)
	}
	return out
}

func formatWindows(ws []model.TimeWindow) string {
	if len(ws) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		parts = append(parts, w.Start+"-"+w.End)
	}
	return strings.Join(parts, ", ")
}
