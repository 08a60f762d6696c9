package commands

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTailAuditEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	lines := `{"time":"2026-08-01T10:00:00Z","tool":"read_file","outcome":"allowed"}
{"time":"2026-08-01T10:01:00Z","tool":"write_file","outcome":"approved"}
not json at all
{"time":"2026-08-01T10:02:00Z","tool":"exec","outcome":"denied"}
`
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := tailAuditEntries(path, 2)
	if err != nil {
		t.Fatalf("tailAuditEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Tool != "write_file" || entries[1].Tool != "exec" {
		t.Fatalf("unexpected tail order: %s, %s", entries[0].Tool, entries[1].Tool)
	}
}

func TestTailAuditEntries_MissingFile(t *testing.T) {
	entries, err := tailAuditEntries(filepath.Join(t.TempDir(), "absent.jsonl"), 10)
	if err != nil {
		t.Fatalf("tailAuditEntries: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}
