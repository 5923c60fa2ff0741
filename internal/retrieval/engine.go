// Package retrieval answers questions over a tenant's indexed documents:
// similarity search, bounded context assembly, one model call, citations for
// every chunk actually used.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rag-knowledge-backend/internal/ai"
	"rag-knowledge-backend/internal/vectorindex"
)

// InsufficientContextAnswer is returned verbatim when the index has nothing
// relevant. No model call is made in that case, so the engine can never
// fabricate an answer from thin air.
const InsufficientContextAnswer = "I couldn't find any relevant information in your documents."

// ErrGenerationFailed wraps a model invocation failure. The caller gets an
// explicit error, never a silently empty answer.
var ErrGenerationFailed = errors.New("retrieval: generation failed")

// Searcher is the query surface of the vector index.
type Searcher interface {
	Query(ctx context.Context, namespace, text string, topK int) ([]vectorindex.Match, error)
}

// CompleterResolver yields the tenant's model capability.
type CompleterResolver interface {
	Resolve(ctx context.Context, ownerID string) (ai.Completer, error)
}

// Citation points at one chunk that contributed to the answer.
type Citation struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
}

// Answer is the engine's response to one question.
type Answer struct {
	Text       string     `json:"answer"`
	Sources    []Citation `json:"sources"`
	TokensUsed int        `json:"tokensUsed"`
}

// Config bounds the engine's retrieval and generation.
type Config struct {
	TopK            int
	MaxTokens       int
	MaxContextChars int
}

// Engine wires search and generation together.
type Engine struct {
	index    Searcher
	resolver CompleterResolver
	cfg      Config
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewEngine(index Searcher, resolver CompleterResolver, cfg Config, log *slog.Logger) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 8000
	}
	return &Engine{index: index, resolver: resolver, cfg: cfg, log: log, tracer: otel.Tracer("retrieval")}
}

// Ask answers a question scoped to the owner's namespace. topK <= 0 uses the
// configured default.
func (e *Engine) Ask(ctx context.Context, ownerID, question string, topK int) (*Answer, error) {
	ctx, span := e.tracer.Start(ctx, "retrieval.ask")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	if topK <= 0 {
		topK = e.cfg.TopK
	}

	matches, err := e.index.Query(ctx, ownerID, question, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	span.SetAttributes(attribute.Int("retrieval.matches", len(matches)))

	if len(matches) == 0 {
		e.log.Info("no matches for query", "owner_id", ownerID)
		return &Answer{Text: InsufficientContextAnswer, Sources: []Citation{}}, nil
	}

	included := e.fitContext(matches)
	prompt := buildPrompt(included, question)

	completer, err := e.resolver.Resolve(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	text, err := completer.Complete(ctx, prompt, e.cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	sources := make([]Citation, 0, len(included))
	for _, m := range included {
		sources = append(sources, Citation{
			DocumentID: m.Metadata.DocumentID,
			Title:      m.Metadata.Title,
			Page:       m.Metadata.Page,
			ChunkIndex: m.Metadata.ChunkIndex,
			Score:      m.Score,
		})
	}

	return &Answer{
		Text:       strings.TrimSpace(text),
		Sources:    sources,
		TokensUsed: estimateTokens(prompt) + estimateTokens(text),
	}, nil
}

// fitContext keeps the highest-ranked matches that fit the character budget,
// dropping from the bottom of the ranking. The top match is always included,
// truncated to the budget if it alone exceeds it. The budget counts runes,
// the same unit the chunker bounds by, so multibyte text is never cut inside
// a UTF-8 sequence.
func (e *Engine) fitContext(matches []vectorindex.Match) []vectorindex.Match {
	budget := e.cfg.MaxContextChars
	var included []vectorindex.Match
	used := 0
	for i, m := range matches {
		n := utf8.RuneCountInString(m.Text)
		if used+n > budget {
			if i == 0 {
				m.Text = truncateRunes(m.Text, budget)
				included = append(included, m)
			}
			break
		}
		used += n
		included = append(included, m)
	}
	return included
}

// truncateRunes cuts s to at most n runes, on a rune boundary.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func buildPrompt(matches []vectorindex.Match, question string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say you could not find it in the documents.\n\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "Context %d:\n%s\n\n", i+1, m.Text)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

// estimateTokens is the usual rough chars/4 heuristic; providers differ and
// we only need an order-of-magnitude usage figure.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
