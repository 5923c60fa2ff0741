package chunker

import (
	"reflect"
	"strings"
	"testing"

	"rag-knowledge-backend/models"
)

func TestChunkPagesWindowShape(t *testing.T) {
	// 1500-char page 1, 400-char page 2, size 1000, overlap 200 must yield
	// page 1 -> [0,1000) and [800,1500), page 2 -> [0,400).
	pages := []models.Page{
		{Number: 1, Text: strings.Repeat("a", 1500)},
		{Number: 2, Text: strings.Repeat("b", 400)},
	}

	chunks, err := ChunkPages(pages, 1000, 200)
	if err != nil {
		t.Fatalf("ChunkPages: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	want := []struct{ index, page, start, end int }{
		{0, 1, 0, 1000},
		{1, 1, 800, 1500},
		{2, 2, 0, 400},
	}
	for i, w := range want {
		c := chunks[i]
		if c.Index != w.index || c.Page != w.page || c.Start != w.start || c.End != w.end {
			t.Errorf("chunk %d: got (index=%d page=%d start=%d end=%d), want %+v",
				i, c.Index, c.Page, c.Start, c.End, w)
		}
	}
}

func TestChunkPagesOffsetCoverage(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog. " // 45 chars
	page := models.Page{Number: 1, Text: strings.Repeat(text, 40)}

	size, overlap := 300, 60
	chunks, err := ChunkPages([]models.Page{page}, size, overlap)
	if err != nil {
		t.Fatalf("ChunkPages: %v", err)
	}

	runes := []rune(page.Text)
	for _, c := range chunks {
		if got := string(runes[c.Start:c.End]); got != c.Text {
			t.Fatalf("chunk %d: text does not match page[start:end]", c.Index)
		}
	}
	// Consecutive chunks on the same page overlap by exactly overlap runes,
	// except possibly the final short chunk.
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if prev.Page != cur.Page {
			continue
		}
		if got := prev.End - cur.Start; got != overlap && cur.End != len(runes) {
			t.Errorf("chunks %d/%d: overlap %d, want %d", prev.Index, cur.Index, got, overlap)
		}
	}
}

func TestChunkPagesDeterministic(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Text: strings.Repeat("alpha beta gamma ", 120)},
		{Number: 2, Text: strings.Repeat("delta epsilon ", 35)},
	}

	first, err := ChunkPages(pages, 512, 64)
	if err != nil {
		t.Fatalf("ChunkPages: %v", err)
	}
	second, err := ChunkPages(pages, 512, 64)
	if err != nil {
		t.Fatalf("ChunkPages: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs produced different chunk sequences")
	}
}

func TestChunkPagesDegenerateInputs(t *testing.T) {
	t.Run("short page yields one whole-page chunk", func(t *testing.T) {
		chunks, err := ChunkPages([]models.Page{{Number: 3, Text: "tiny"}}, 1000, 200)
		if err != nil {
			t.Fatalf("ChunkPages: %v", err)
		}
		if len(chunks) != 1 || chunks[0].Text != "tiny" || chunks[0].Start != 0 || chunks[0].End != 4 {
			t.Fatalf("unexpected chunks: %+v", chunks)
		}
		if chunks[0].Page != 3 {
			t.Errorf("page = %d, want 3", chunks[0].Page)
		}
	})

	t.Run("empty page yields no chunks", func(t *testing.T) {
		chunks, err := ChunkPages([]models.Page{{Number: 1, Text: ""}, {Number: 2, Text: "x"}}, 10, 2)
		if err != nil {
			t.Fatalf("ChunkPages: %v", err)
		}
		if len(chunks) != 1 || chunks[0].Page != 2 || chunks[0].Index != 0 {
			t.Fatalf("unexpected chunks: %+v", chunks)
		}
	})

	t.Run("no pages", func(t *testing.T) {
		chunks, err := ChunkPages(nil, 10, 2)
		if err != nil {
			t.Fatalf("ChunkPages: %v", err)
		}
		if len(chunks) != 0 {
			t.Fatalf("expected no chunks, got %d", len(chunks))
		}
	})
}

func TestChunkPagesParameterValidation(t *testing.T) {
	pages := []models.Page{{Number: 1, Text: "hello"}}

	if _, err := ChunkPages(pages, 0, 0); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := ChunkPages(pages, 100, 100); err == nil {
		t.Error("expected error for overlap == size")
	}
	if _, err := ChunkPages(pages, 100, -1); err == nil {
		t.Error("expected error for negative overlap")
	}
}

func TestChunkPagesRuneOffsets(t *testing.T) {
	// Multibyte text: offsets must count runes, not bytes.
	page := models.Page{Number: 1, Text: strings.Repeat("héllö wörld ", 30)}
	chunks, err := ChunkPages([]models.Page{page}, 100, 20)
	if err != nil {
		t.Fatalf("ChunkPages: %v", err)
	}
	runes := []rune(page.Text)
	for _, c := range chunks {
		if string(runes[c.Start:c.End]) != c.Text {
			t.Fatalf("chunk %d: rune offsets do not cover text", c.Index)
		}
	}
}
