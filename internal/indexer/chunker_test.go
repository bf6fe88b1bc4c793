package indexer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/kiku/internal/models"
)

// reconstruct drops the leading overlap of every chunk but the first and joins the rest.
func reconstruct(chunks []models.DocumentChunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		r := []rune(ch.Text)
		b.WriteString(string(r[overlap:]))
	}
	return b.String()
}

func tokens(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "abcdefghi"
	}
	return strings.Join(words, " ") + " "
}

func TestSplit_ThreeChunks(t *testing.T) {
	text := tokens(250) // 2500 characters
	if utf8.RuneCountInString(text) != 2500 {
		t.Fatalf("fixture has %d characters", utf8.RuneCountInString(text))
	}
	chunks, err := Split("doc", text, 1000, 150)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	runes := []rune(text)
	wantBounds := [][2]int{{0, 1000}, {850, 1850}, {1700, 2500}}
	for i, ch := range chunks {
		if ch.SequenceIndex != i {
			t.Errorf("chunk %d SequenceIndex=%d", i, ch.SequenceIndex)
		}
		if ch.ID != ChunkID("doc", i) {
			t.Errorf("chunk %d ID=%s", i, ch.ID)
		}
		want := string(runes[wantBounds[i][0]:wantBounds[i][1]])
		if ch.Text != want {
			t.Errorf("chunk %d spans wrong range", i)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		if string(prev[len(prev)-150:]) != string(cur[:150]) {
			t.Errorf("chunks %d and %d do not share 150 characters", i-1, i)
		}
	}
	if reconstruct(chunks, 150) != text {
		t.Error("reconstruction does not match input")
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("x", 3333),
		"First paragraph is here.\n\nSecond one follows! Does it? Yes.\nLine two.\n\n" + strings.Repeat("word ", 300),
		strings.Repeat("日本語のテキスト。", 200),
		strings.Repeat("Sentence number one. ", 97),
	}
	params := [][2]int{{1000, 150}, {100, 0}, {50, 49}, {7, 3}, {1, 0}}
	for _, text := range texts {
		for _, p := range params {
			chunks, err := Split("d", text, p[0], p[1])
			if err != nil {
				t.Fatalf("Split(%d,%d): %v", p[0], p[1], err)
			}
			for i, ch := range chunks {
				if n := utf8.RuneCountInString(ch.Text); n > p[0] || n == 0 {
					t.Fatalf("size=%d overlap=%d: chunk %d has %d characters", p[0], p[1], i, n)
				}
			}
			if got := reconstruct(chunks, p[1]); got != text {
				t.Fatalf("size=%d overlap=%d: reconstruction mismatch", p[0], p[1])
			}
		}
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 20) + ". " + strings.Repeat("c", 50)
	chunks, err := Split("d", text, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if chunks[0].Text != strings.Repeat("a", 70)+"\n\n" {
		t.Errorf("first chunk should end at paragraph break, got %q", chunks[0].Text)
	}
}

func TestSplit_PrefersSentenceOverSpace(t *testing.T) {
	text := strings.Repeat("a", 60) + ". " + strings.Repeat("b", 20) + " " + strings.Repeat("c", 50)
	chunks, err := Split("d", text, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(chunks[0].Text, ". ") {
		t.Errorf("first chunk should end after a sentence, got %q", chunks[0].Text)
	}
}

func TestSplit_HardCut(t *testing.T) {
	chunks, err := Split("d", strings.Repeat("z", 250), 100, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Text) != 100 {
		t.Errorf("hard cut should fill the window, got %d", len(chunks[0].Text))
	}
}

func TestSplit_Empty(t *testing.T) {
	chunks, err := Split("d", "", 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("empty text should give no chunks, got %d", len(chunks))
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	cases := [][2]int{{0, 0}, {-5, 0}, {10, -1}, {10, 10}, {10, 11}}
	for _, c := range cases {
		if _, err := Split("d", "text", c[0], c[1]); !errors.Is(err, models.ErrInvalidParameters) {
			t.Errorf("Split(size=%d, overlap=%d) err=%v, want ErrInvalidParameters", c[0], c[1], err)
		}
		if _, err := NewChunker(c[0], c[1]); !errors.Is(err, models.ErrInvalidParameters) {
			t.Errorf("NewChunker(%d, %d) err=%v", c[0], c[1], err)
		}
	}
}

func TestChunker_Chunk(t *testing.T) {
	c, err := NewChunker(20, 5)
	if err != nil {
		t.Fatal(err)
	}
	chunks := c.Chunk("doc1", "one two three four five six seven eight nine ten")
	if len(chunks) < 2 {
		t.Errorf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d DocumentID=%s", i, ch.DocumentID)
		}
		if ch.SequenceIndex != i {
			t.Errorf("chunk %d SequenceIndex=%d", i, ch.SequenceIndex)
		}
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a  b  ") != "a b" {
		t.Error("expected trimmed and collapsed spaces")
	}
	got := Preprocess("Title\r\n\r\n\r\n  body\tline one \nline two\n\n\n")
	want := "Title\n\nbody line one\nline two"
	if got != want {
		t.Errorf("Preprocess = %q, want %q", got, want)
	}
}
