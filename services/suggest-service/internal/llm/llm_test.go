package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
)

type scriptedChat struct {
	replies []string
	err     error
	calls   [][]Message
}

func (s *scriptedChat) Chat(_ context.Context, messages []Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

type memoryCache struct {
	items map[string]model.AvailabilitySpec
}

func (m *memoryCache) Get(_ context.Context, text string) (model.AvailabilitySpec, bool, error) {
	spec, ok := m.items[text]
	return spec, ok, nil
}

func (m *memoryCache) Put(_ context.Context, text string, spec model.AvailabilitySpec) error {
	m.items[text] = spec
	return nil
}

const validSpecJSON = `{"provider_id":"dr-1","timezone":"UTC","date_range":{"start":"2025-02-03","end":"2025-02-04"}}`

func TestClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || req.Temperature != 0.1 || len(req.Messages) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "test-model", Timeout: time.Second})
	got, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestClientStatusAndMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "sk-bad", BaseURL: srv.URL}).Chat(context.Background(), nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}

	_, err = NewClient(Config{BaseURL: srv.URL}).Chat(context.Background(), nil)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":2}\n```", `{"a":2}`},
		{"Sure! {\"a\":3} hope that helps", `{"a":3}`},
		{"  nothing here  ", "nothing here"},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Fatalf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := ExtractJSONArray(`Here: ["a","b"]`); got != `["a","b"]` {
		t.Fatalf("ExtractJSONArray got %q", got)
	}
}

func TestNormalizeFirstTry(t *testing.T) {
	chat := &scriptedChat{replies: []string{"```json\n" + validSpecJSON + "\n```"}}
	res, err := NewNormalizer(chat, NormalizerOptions{}).Normalize(context.Background(), "Dr 1 free Monday")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !res.OK() || res.Attempts != 1 {
		t.Fatalf("expected success on first attempt, got %+v", res)
	}
	if res.Spec.ProviderID != "dr-1" || res.Spec.SlotLengthMinutes != 30 {
		t.Fatalf("unexpected spec %+v", res.Spec)
	}
	if !strings.Contains(chat.calls[0][0].Content, "Dr 1 free Monday") {
		t.Fatal("prompt should contain the availability text")
	}
}

func TestNormalizeRepairsOnce(t *testing.T) {
	chat := &scriptedChat{replies: []string{`{"provider_id":"dr-1"}`, validSpecJSON}}
	res, err := NewNormalizer(chat, NormalizerOptions{}).Normalize(context.Background(), "text")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !res.OK() || res.Attempts != 2 {
		t.Fatalf("expected success after repair, got %+v", res)
	}
	if len(chat.calls) != 2 || len(chat.calls[1]) != 3 {
		t.Fatalf("expected repair call with 3 messages, got %d calls", len(chat.calls))
	}
	if chat.calls[1][1].Role != "assistant" || !strings.Contains(chat.calls[1][2].Content, "The previous JSON was invalid") {
		t.Fatalf("unexpected repair conversation %+v", chat.calls[1])
	}
}

func TestNormalizeFailsAfterRepair(t *testing.T) {
	chat := &scriptedChat{replies: []string{"not json", `{"timezone":"Nowhere/City"}`}}
	res, err := NewNormalizer(chat, NormalizerOptions{}).Normalize(context.Background(), "text")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.OK() || res.Attempts != 2 {
		t.Fatalf("expected failure after two attempts, got %+v", res)
	}
	if len(chat.calls) != 2 {
		t.Fatalf("expected exactly two model calls, got %d", len(chat.calls))
	}
}

func TestNormalizeTransportError(t *testing.T) {
	chat := &scriptedChat{err: ErrMissingAPIKey}
	_, err := NewNormalizer(chat, NormalizerOptions{}).Normalize(context.Background(), "text")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNormalizeUsesCache(t *testing.T) {
	cache := &memoryCache{items: map[string]model.AvailabilitySpec{}}
	chat := &scriptedChat{replies: []string{validSpecJSON}}
	n := NewNormalizer(chat, NormalizerOptions{Cache: cache})

	if _, err := n.Normalize(context.Background(), "same text"); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	res, err := n.Normalize(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !res.Cached || res.Spec.ProviderID != "dr-1" {
		t.Fatalf("expected cached spec, got %+v", res)
	}
	if len(chat.calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(chat.calls))
	}
}

func explainFixture() ([]slots.CandidateSlot, model.AvailabilitySpec) {
	spec := model.NewAvailabilitySpec("dr-1", "UTC", model.DateSpan{Start: "2025-02-03", End: "2025-02-03"})
	start := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	return []slots.CandidateSlot{
		{Start: start, End: start.Add(30 * time.Minute), ProviderID: "dr-1"},
		{Start: start.Add(time.Hour), End: start.Add(90 * time.Minute), ProviderID: "dr-1"},
	}, spec
}

func TestExplain(t *testing.T) {
	candidates, spec := explainFixture()
	cases := []struct {
		name  string
		reply string
		want  []string
	}{
		{"array", `["Early start.", "After the gap.", "extra"]`, []string{"Early start.", "After the gap."}},
		{"fenced", "```json\n[\"a\", \"b\"]\n```", []string{"a", "b"}},
		{"too short", `["only one"]`, []string{FallbackExplanation("dr-1"), FallbackExplanation("dr-1")}},
		{"garbage", "I think they are fine", []string{FallbackExplanation("dr-1"), FallbackExplanation("dr-1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &scriptedChat{replies: []string{tc.reply}}
			got, err := NewExplainer(chat).Explain(context.Background(), candidates, spec)
			if err != nil {
				t.Fatalf("Explain: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d explanations, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("explanation %d: expected %q, got %q", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestExplainEmptyAndError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("boom")}
	got, err := NewExplainer(chat).Explain(context.Background(), nil, model.AvailabilitySpec{})
	if err != nil || len(got) != 0 || len(chat.calls) != 0 {
		t.Fatalf("expected no call for no slots, got %v %v", got, err)
	}
	candidates, spec := explainFixture()
	if _, err := NewExplainer(chat).Explain(context.Background(), candidates, spec); err == nil {
		t.Fatal("expected chat error to propagate")
	}
}
