package fileid

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestFileDocID(t *testing.T) {
	id := FileDocID("/docs/handbook.md")
	if !strings.HasPrefix(id, prefix) {
		t.Fatalf("missing %q prefix: %q", prefix, id)
	}
	if want := len(prefix) + 64; len(id) != want {
		t.Errorf("len = %d, want %d", len(id), want)
	}
	if FileDocID("/docs/handbook.md") != id {
		t.Error("same path gave a different id")
	}
}

func TestFileDocID_equivalentPaths(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"trailing slash", "/docs/guides", "/docs/guides/", true},
		{"dot segment", "/docs/guides", "/docs/./guides", true},
		{"parent segment", "/docs/guides", "/docs/tmp/../guides", true},
		{"sibling", "/docs/guides/a.md", "/docs/guides/b.md", false},
		{"relative vs absolute", "guides/a.md", "/guides/a.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileDocID(tt.a) == FileDocID(tt.b); got != tt.same {
				t.Errorf("FileDocID(%q) == FileDocID(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

func TestFileDocID_fromWorkingDir(t *testing.T) {
	abs, err := filepath.Abs("testdata/notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if FileDocID(abs) != FileDocID(filepath.Join(filepath.Dir(abs), ".", "notes.txt")) {
		t.Error("joined path should normalize to the same id")
	}
}

func TestContentDocID(t *testing.T) {
	a := ContentDocID([]byte("quarterly report"))
	if !strings.HasPrefix(a, contentPrefix) || len(a) != len(contentPrefix)+contentIDLen {
		t.Fatalf("unexpected id shape: %q", a)
	}
	if ContentDocID([]byte("quarterly report")) != a {
		t.Error("identical uploads should share an id")
	}
	if ContentDocID([]byte("quarterly report.")) == a {
		t.Error("different bytes should give a different id")
	}
	if ContentDocID(nil) == a {
		t.Error("empty upload collided with content")
	}
}
