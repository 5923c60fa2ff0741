package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"rag-knowledge-backend/internal/ai"
	"rag-knowledge-backend/internal/vectorindex"
)

type fakeSearcher struct {
	matches   []vectorindex.Match
	err       error
	namespace string
	text      string
	topK      int
}

func (f *fakeSearcher) Query(_ context.Context, namespace, text string, topK int) ([]vectorindex.Match, error) {
	f.namespace, f.text, f.topK = namespace, text, topK
	return f.matches, f.err
}

type fakeResolver struct {
	completer ai.Completer
	err       error
}

func (f *fakeResolver) Resolve(context.Context, string) (ai.Completer, error) {
	return f.completer, f.err
}

type completerFunc func(context.Context, string, int) (string, error)

func (f completerFunc) Complete(ctx context.Context, p string, n int) (string, error) {
	return f(ctx, p, n)
}

func newTestEngine(searcher Searcher, resolver CompleterResolver, cfg Config) *Engine {
	return NewEngine(searcher, resolver, cfg, slog.New(slog.DiscardHandler))
}

func match(docID string, chunkIndex, page int, score float64, text string) vectorindex.Match {
	return vectorindex.Match{
		ID:    docID,
		Score: score,
		Text:  text,
		Metadata: vectorindex.Metadata{
			OwnerID:    "owner-1",
			DocumentID: docID,
			Title:      "Doc " + docID,
			Page:       page,
			ChunkIndex: chunkIndex,
		},
	}
}

func TestAskScopesQueryToOwner(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorindex.Match{match("d1", 0, 1, 0.9, "relevant text")}}
	resolver := &fakeResolver{completer: completerFunc(func(_ context.Context, prompt string, _ int) (string, error) {
		return "answer", nil
	})}
	e := newTestEngine(searcher, resolver, Config{})

	if _, err := e.Ask(context.Background(), "owner-1", "what is it?", 3); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if searcher.namespace != "owner-1" {
		t.Errorf("namespace = %q, want owner-1", searcher.namespace)
	}
	if searcher.topK != 3 {
		t.Errorf("topK = %d, want 3", searcher.topK)
	}
}

func TestAskZeroMatchesSkipsModel(t *testing.T) {
	searcher := &fakeSearcher{}
	resolver := &fakeResolver{completer: completerFunc(func(context.Context, string, int) (string, error) {
		t.Error("model called despite zero matches")
		return "", nil
	})}
	e := newTestEngine(searcher, resolver, Config{})

	ans, err := e.Ask(context.Background(), "owner-1", "anything?", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != InsufficientContextAnswer {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v, want empty", ans.Sources)
	}
	if ans.TokensUsed != 0 {
		t.Errorf("tokens used = %d, want 0", ans.TokensUsed)
	}
}

func TestAskBuildsPromptAndCitations(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorindex.Match{
		match("d1", 2, 1, 0.92, "first chunk"),
		match("d2", 0, 4, 0.81, "second chunk"),
	}}
	var gotPrompt string
	var gotMaxTokens int
	resolver := &fakeResolver{completer: completerFunc(func(_ context.Context, prompt string, maxTokens int) (string, error) {
		gotPrompt, gotMaxTokens = prompt, maxTokens
		return "  generated answer  ", nil
	})}
	e := newTestEngine(searcher, resolver, Config{MaxTokens: 500})

	ans, err := e.Ask(context.Background(), "owner-1", "what changed?", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !strings.Contains(gotPrompt, "Context 1:\nfirst chunk") ||
		!strings.Contains(gotPrompt, "Context 2:\nsecond chunk") ||
		!strings.Contains(gotPrompt, "Question: what changed?") {
		t.Errorf("prompt missing sections:\n%s", gotPrompt)
	}
	if gotMaxTokens != 500 {
		t.Errorf("maxTokens = %d", gotMaxTokens)
	}
	if ans.Text != "generated answer" {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(ans.Sources))
	}
	if ans.Sources[1].Page != 4 || ans.Sources[1].DocumentID != "d2" {
		t.Errorf("citation = %+v", ans.Sources[1])
	}
	if ans.TokensUsed <= 0 {
		t.Errorf("tokens used = %d", ans.TokensUsed)
	}
}

func TestAskDropsLowestRankedOverBudget(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorindex.Match{
		match("d1", 0, 1, 0.9, strings.Repeat("a", 60)),
		match("d2", 1, 1, 0.8, strings.Repeat("b", 60)),
		match("d3", 2, 1, 0.7, strings.Repeat("c", 60)),
	}}
	resolver := &fakeResolver{completer: completerFunc(func(_ context.Context, prompt string, _ int) (string, error) {
		if strings.Contains(prompt, "ccc") {
			t.Error("lowest-ranked chunk should have been dropped")
		}
		return "ok", nil
	})}
	e := newTestEngine(searcher, resolver, Config{MaxContextChars: 130})

	ans, err := e.Ask(context.Background(), "owner-1", "q", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Sources) != 2 {
		t.Errorf("sources = %d, want 2 (third dropped)", len(ans.Sources))
	}
}

func TestAskTruncatesSingleOversizedChunk(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorindex.Match{
		match("d1", 0, 1, 0.9, strings.Repeat("x", 500)),
	}}
	resolver := &fakeResolver{completer: completerFunc(func(_ context.Context, prompt string, _ int) (string, error) {
		return "ok", nil
	})}
	e := newTestEngine(searcher, resolver, Config{MaxContextChars: 100})

	ans, err := e.Ask(context.Background(), "owner-1", "q", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("top match must always be cited, got %d sources", len(ans.Sources))
	}
}

func TestAskTruncatesMultibyteTextOnRuneBoundary(t *testing.T) {
	// 100 runes, 200 bytes. A byte-counted cut at an odd budget would split a
	// UTF-8 sequence and hand the model a corrupted prompt.
	searcher := &fakeSearcher{matches: []vectorindex.Match{
		match("d1", 0, 1, 0.9, strings.Repeat("é", 100)),
	}}
	var gotPrompt string
	resolver := &fakeResolver{completer: completerFunc(func(_ context.Context, prompt string, _ int) (string, error) {
		gotPrompt = prompt
		return "ok", nil
	})}
	e := newTestEngine(searcher, resolver, Config{MaxContextChars: 51})

	if _, err := e.Ask(context.Background(), "owner-1", "q", 0); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !utf8.ValidString(gotPrompt) {
		t.Fatal("prompt contains invalid UTF-8 after truncation")
	}
	if got := strings.Count(gotPrompt, "é"); got != 51 {
		t.Errorf("truncated context carries %d runes, want 51", got)
	}
}

func TestAskCountsContextBudgetInRunes(t *testing.T) {
	// Two 40-rune multibyte chunks are 160 bytes total; a byte-counted budget
	// of 100 would wrongly drop the second one.
	searcher := &fakeSearcher{matches: []vectorindex.Match{
		match("d1", 0, 1, 0.9, strings.Repeat("ü", 40)),
		match("d2", 1, 1, 0.8, strings.Repeat("ö", 40)),
	}}
	resolver := &fakeResolver{completer: completerFunc(func(context.Context, string, int) (string, error) {
		return "ok", nil
	})}
	e := newTestEngine(searcher, resolver, Config{MaxContextChars: 100})

	ans, err := e.Ask(context.Background(), "owner-1", "q", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Sources) != 2 {
		t.Errorf("sources = %d, want 2 (both chunks fit a 100-rune budget)", len(ans.Sources))
	}
}

func TestAskSurfacesGenerationFailure(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorindex.Match{match("d1", 0, 1, 0.9, "text")}}
	resolver := &fakeResolver{completer: completerFunc(func(context.Context, string, int) (string, error) {
		return "", errors.New("upstream 500")
	})}
	e := newTestEngine(searcher, resolver, Config{})

	_, err := e.Ask(context.Background(), "owner-1", "q", 0)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestAskSurfacesResolverFailure(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorindex.Match{match("d1", 0, 1, 0.9, "text")}}
	resolver := &fakeResolver{err: ai.ErrNoCredentials}
	e := newTestEngine(searcher, resolver, Config{})

	_, err := e.Ask(context.Background(), "owner-1", "q", 0)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestAskSearchErrorPropagates(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index down")}
	e := newTestEngine(searcher, &fakeResolver{}, Config{})

	if _, err := e.Ask(context.Background(), "owner-1", "q", 0); err == nil {
		t.Fatal("expected search error")
	}
}
