package handlers

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/events"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/llm"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/rag"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/storage"
)

type fakeNormalizer struct {
	res   llm.NormalizeResult
	err   error
	calls int
}

func (f *fakeNormalizer) Normalize(context.Context, string) (llm.NormalizeResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeExplainer struct {
	out   []string
	err   error
	calls int
}

func (f *fakeExplainer) Explain(_ context.Context, c []slots.CandidateSlot, _ model.AvailabilitySpec) ([]string, error) {
	f.calls++
	return f.out, f.err
}

type fakeAnswerer struct {
	answer rag.Answer
	err    error
	corpus string
}

func (f *fakeAnswerer) Ask(_ context.Context, corpus rag.Corpus, _ string) (rag.Answer, error) {
	f.corpus = corpus.Label
	return f.answer, f.err
}

type chanPublisher chan events.SlotsSuggested

func (c chanPublisher) PublishSlotsSuggested(_ context.Context, evt events.SlotsSuggested) error {
	c <- evt
	return nil
}

func (c chanPublisher) Close() error { return nil }

type fixture struct {
	mux        *http.ServeMux
	normalizer *fakeNormalizer
	explainer  *fakeExplainer
	answerer   *fakeAnswerer
	published  chanPublisher
	docsDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		normalizer: &fakeNormalizer{},
		explainer:  &fakeExplainer{},
		answerer:   &fakeAnswerer{},
		published:  make(chanPublisher, 4),
		docsDir:    filepath.Join(t.TempDir(), "patient_docs"),
	}
	h := New(Options{
		Normalizer:    f.normalizer,
		Explainer:     f.explainer,
		Answerer:      f.answerer,
		SchedulerDocs: rag.Corpus{Label: "scheduler documentation"},
		PatientDocs:   rag.Corpus{Label: "patient documents"},
		PatientStore:  storage.NewFSStore(f.docsDir),
		Publisher:     f.published,
		MaxSlots:      5,
	})
	f.mux = http.NewServeMux()
	h.Register(f.mux, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

const structuredBody = `{"structured_availability":{
	"provider_id":"dr-1","timezone":"UTC",
	"date_range":{"start":"2025-02-03","end":"2025-02-03"},
	"existing_appointments":[{"start":"2025-02-03T10:00:00Z","end":"2025-02-03T10:30:00Z"}]
}}`

func TestSuggestStructured(t *testing.T) {
	f := newFixture(t)
	f.explainer.out = []string{"one", "two", "three"}

	rec := f.do(t, http.MethodPost, "/suggest", structuredBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[suggestResponse](t, rec)
	if len(resp.Slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(resp.Slots))
	}
	if resp.Slots[0].StartISO != "2025-02-03T09:00:00+00:00" || resp.Slots[1].StartISO != "2025-02-03T11:00:00+00:00" {
		t.Fatalf("unexpected slots %+v", resp.Slots[:2])
	}
	if resp.Slots[2].Explanation != "three" || resp.Slots[3].Explanation != missingExplanation {
		t.Fatalf("unexpected explanations %+v", resp.Slots)
	}
	if resp.RawAvailabilityUsed == nil || resp.RawAvailabilityUsed.BufferMinutes != 10 {
		t.Fatalf("expected defaults echoed, got %+v", resp.RawAvailabilityUsed)
	}
	if f.normalizer.calls != 0 {
		t.Fatal("structured input must not call the normalizer")
	}

	select {
	case evt := <-f.published:
		if evt.Source != "structured" || len(evt.Slots) != 5 || evt.ProviderID != "dr-1" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published event")
	}
}

func TestSuggestNoSlotsSkipsExplainer(t *testing.T) {
	f := newFixture(t)
	body := `{"structured_availability":{"provider_id":"dr-1","timezone":"UTC","date_range":{"start":"2025-02-08","end":"2025-02-09"}}}`
	rec := f.do(t, http.MethodPost, "/suggest", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[suggestResponse](t, rec)
	if len(resp.Slots) != 0 || resp.RawAvailabilityUsed == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if f.explainer.calls != 0 {
		t.Fatal("explainer must not be called without slots")
	}
}

func TestSuggestText(t *testing.T) {
	f := newFixture(t)
	f.normalizer.res = llm.NormalizeResult{
		Spec: model.NewAvailabilitySpec("dr-2", "UTC", model.DateSpan{Start: "2025-02-03", End: "2025-02-03"}),
	}
	f.explainer.out = []string{"a", "b", "c", "d", "e"}

	rec := f.do(t, http.MethodPost, "/suggest", `{"availability_text":"Dr 2 Monday"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[suggestResponse](t, rec)
	if len(resp.Slots) != 5 || resp.Slots[0].ProviderID != "dr-2" {
		t.Fatalf("unexpected slots %+v", resp.Slots)
	}
}

func TestSuggestErrors(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		normErr  error
		normFail string
		explErr  error
		want     int
		contains string
	}{
		{name: "no input", body: `{}`, want: http.StatusUnprocessableEntity, contains: "Either availability_text"},
		{name: "blank text", body: `{"availability_text":"   "}`, want: http.StatusUnprocessableEntity},
		{name: "bad json", body: `{"availability_text":`, want: http.StatusUnprocessableEntity},
		{name: "invalid structured", body: `{"structured_availability":{"provider_id":"dr-1","timezone":"Nowhere/Land","slot_length_minutes":1,"date_range":{"start":"2025-02-03","end":"2025-02-03"}}}`, want: http.StatusUnprocessableEntity, contains: "slot_length_minutes"},
		{name: "missing key", body: `{"availability_text":"x"}`, normErr: llm.ErrMissingAPIKey, want: http.StatusServiceUnavailable, contains: "OPENAI_API_KEY"},
		{name: "unauthorized upstream", body: `{"availability_text":"x"}`, normErr: &llm.StatusError{Code: 401}, want: http.StatusBadGateway, contains: "Invalid or missing API key"},
		{name: "upstream 500", body: `{"availability_text":"x"}`, normErr: &llm.StatusError{Code: 500, Body: "oops"}, want: http.StatusBadGateway, contains: "LLM API error (500)"},
		{name: "normalize failure", body: `{"availability_text":"x"}`, normFail: "decode availability json", want: http.StatusBadGateway, contains: "Could not normalize"},
		{name: "explain failure", body: structuredBody, explErr: errors.New("connection reset"), want: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.normalizer.err = tc.normErr
			f.normalizer.res = llm.NormalizeResult{Failure: tc.normFail, Attempts: 2}
			f.explainer.err = tc.explErr
			rec := f.do(t, http.MethodPost, "/suggest", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if tc.contains != "" && !strings.Contains(rec.Body.String(), tc.contains) {
				t.Fatalf("expected %q in %s", tc.contains, rec.Body.String())
			}
		})
	}
}

func TestAskRoutesToCorpus(t *testing.T) {
	f := newFixture(t)
	f.answerer.answer = rag.Answer{Text: "Thirty minutes.", Sources: []string{"faq.md"}}

	rec := f.do(t, http.MethodPost, "/ask", `{"question":"  how long are slots?  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["answer"] != "Thirty minutes." || f.answerer.corpus != "scheduler documentation" {
		t.Fatalf("unexpected answer %v from %s", got, f.answerer.corpus)
	}

	rec = f.do(t, http.MethodPost, "/ask_patient", `{"question":"allergies?"}`)
	if rec.Code != http.StatusOK || f.answerer.corpus != "patient documents" {
		t.Fatalf("expected patient corpus, got %d %s", rec.Code, f.answerer.corpus)
	}
}

func TestAskErrors(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/ask", `{"question":"   "}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty question, got %d", rec.Code)
	}
	f.answerer.err = llm.ErrMissingAPIKey
	if rec := f.do(t, http.MethodPost, "/ask", `{"question":"hi there"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	f.answerer.err = rag.ErrDocuments
	if rec := f.do(t, http.MethodPost, "/ask_patient", `{"question":"hi there"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/ask", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, uploadRequest(t, "file", "history.md", "No known allergies."))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[uploadResponse](t, rec)
	if got.Message != "File 'history.md' uploaded successfully" || got.Filename != "history.md" {
		t.Fatalf("unexpected response %+v", got)
	}
	saved, err := os.ReadFile(filepath.Join(f.docsDir, "history.md"))
	if err != nil || string(saved) != "No known allergies." {
		t.Fatalf("file not saved: %q %v", saved, err)
	}

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, uploadRequest(t, "file", "scan.pdf", "%PDF"))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "File type not supported") {
		t.Fatalf("expected 400 for pdf, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, uploadRequest(t, "", "", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
