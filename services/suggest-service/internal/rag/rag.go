package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/llm"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/storage"
)

// ErrDocuments marks failures to read a corpus, as opposed to model errors.
var ErrDocuments = errors.New("documents unavailable")

const (
	DefaultChunkSize = 400
	DefaultTopK      = 3
)

// Source lists the documents of one corpus.
type Source interface {
	List(ctx context.Context) ([]storage.Document, error)
}

// Corpus is a named document collection. Label is how answers refer to it
// when nothing matches, e.g. "scheduler documentation".
type Corpus struct {
	Label  string
	Source Source
}

type Passage struct {
	Source string
	Text   string
	Score  float64
}

type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at
// most size characters. A single paragraph longer than size stays whole.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks  []string
		current []string
		length  int
	)
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if length+len(p) > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current, length = nil, 0
		}
		current = append(current, p)
		length += len(p)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}

// Score is the fraction of distinct query words longer than two characters
// that also appear in chunk, compared case-insensitively.
func Score(chunk, query string) float64 {
	queryWords := map[string]struct{}{}
	for _, w := range strings.Fields(query) {
		if len(w) > 2 {
			queryWords[strings.ToLower(w)] = struct{}{}
		}
	}
	if len(queryWords) == 0 {
		return 0
	}
	chunkWords := map[string]struct{}{}
	for _, w := range strings.Fields(chunk) {
		chunkWords[strings.ToLower(w)] = struct{}{}
	}
	hits := 0
	for w := range queryWords {
		if _, ok := chunkWords[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryWords))
}

// Retrieve returns the topK best scoring chunks with a positive score. Ties
// keep document then chunk order.
func Retrieve(ctx context.Context, src Source, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	docs, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocuments, err)
	}
	var passages []Passage
	for _, doc := range docs {
		for _, chunk := range Chunk(doc.Content, DefaultChunkSize) {
			if score := Score(chunk, query); score > 0 {
				passages = append(passages, Passage{Source: doc.Name, Text: chunk, Score: score})
			}
		}
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

type Answerer struct {
	chat llm.Chatter
	topK int
}

func NewAnswerer(chat llm.Chatter, topK int) *Answerer {
	return &Answerer{chat: chat, topK: topK}
}

// Ask answers question from corpus. With no matching passage it answers
// without calling the model.
func (a *Answerer) Ask(ctx context.Context, corpus Corpus, question string) (Answer, error) {
	passages, err := Retrieve(ctx, corpus.Source, question, a.topK)
	if err != nil {
		return Answer{}, err
	}
	if len(passages) == 0 {
		return Answer{
			Text:    fmt.Sprintf("I couldn't find relevant information in the %s. Try rephrasing your question or upload more documents.", corpus.Label),
			Sources: []string{},
		}, nil
	}

	blocks := make([]string, 0, len(passages))
	sources := make([]string, 0, len(passages))
	seen := map[string]bool{}
	for _, p := range passages {
		blocks = append(blocks, fmt.Sprintf("[From %s]\n%s", p.Source, p.Text))
		if !seen[p.Source] {
			seen[p.Source] = true
			sources = append(sources, p.Source)
		}
	}
	prompt := fmt.Sprintf(`Use ONLY the following context to answer the question. If the answer is not in the context, say so. Be concise.

Context:
%s

Question: %s

Answer:`, strings.Join(blocks, "\n\n---\n\n"), question)

	reply, err := a.chat.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: strings.TrimSpace(reply), Sources: sources}, nil
}
