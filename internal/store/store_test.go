package store

import (
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	want := sample{Name: "alice", Count: 3}
	if err := WriteJSON(path, &want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var got sample
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Errorf("ReadJSON = %+v, want %+v", got, want)
	}
}

func TestWriteReadTextRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "doc.md")
	if err := WriteText(path, "hello\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got, err := ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "hello\n" {
		t.Errorf("ReadText = %q, want %q", got, "hello\n")
	}
}

func TestReadJSONMissingIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	var v sample
	if err := ReadJSON(path, &v); err == nil {
		t.Fatal("expected an error reading a missing file")
	}
}

func TestExistsAndDirExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	if err := WriteText(filePath, "x"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !Exists(filePath) {
		t.Error("Exists(filePath) = false, want true")
	}
	if Exists(dir) {
		t.Error("Exists(dir) = true, want false (it's a directory)")
	}
	if !DirExists(dir) {
		t.Error("DirExists(dir) = false, want true")
	}
	if DirExists(filePath) {
		t.Error("DirExists(filePath) = true, want false (it's a file)")
	}
}

func TestWriteJSONOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := WriteJSON(path, &sample{Name: "first", Count: 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := WriteJSON(path, &sample{Name: "second", Count: 2}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var got sample
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "second" || got.Count != 2 {
		t.Errorf("ReadJSON = %+v, want {second 2}", got)
	}
	// No leftover tmp files should remain alongside the final file.
	entries, err := filepathGlob(filepath.Dir(path), "doc.json.*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("leftover tmp files: %v", entries)
	}
}

func filepathGlob(dir, pattern string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, pattern))
}

func TestAppendJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	if err := AppendJSONLine(path, &sample{Name: "a", Count: 1}); err != nil {
		t.Fatalf("AppendJSONLine: %v", err)
	}
	if err := AppendJSONLine(path, &sample{Name: "b", Count: 2}); err != nil {
		t.Fatalf("AppendJSONLine: %v", err)
	}
	raw, err := ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	lines := splitLines(raw)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), raw)
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
