package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "note.txt")

	writeTool, err := NewWriteFileTool()
	if err != nil {
		t.Fatalf("NewWriteFileTool error: %v", err)
	}
	if _, err := writeTool.InvokableRun(context.Background(),
		fmt.Sprintf(`{"path": %q, "content": "line1\nline2\nline3"}`, path)); err != nil {
		t.Fatalf("write error: %v", err)
	}

	readTool, err := NewReadFileTool()
	if err != nil {
		t.Fatalf("NewReadFileTool error: %v", err)
	}
	raw, err := readTool.InvokableRun(context.Background(),
		fmt.Sprintf(`{"path": %q, "offset": 1, "limit": 1}`, path))
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	var out ReadFileOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode read output: %v", err)
	}
	if out.Content != "line2" {
		t.Fatalf("expected offset/limit window, got %q", out.Content)
	}
	if out.TotalLines != 3 {
		t.Fatalf("expected 3 total lines, got %d", out.TotalLines)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	listTool, err := NewListDirTool()
	if err != nil {
		t.Fatalf("NewListDirTool error: %v", err)
	}
	raw, err := listTool.InvokableRun(context.Background(), fmt.Sprintf(`{"path": %q}`, dir))
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(raw, "nested/") || !strings.Contains(raw, "file.txt") {
		t.Fatalf("unexpected listing: %s", raw)
	}
}

func TestSearchFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"main.go", "main_test.go", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	searchTool, err := NewSearchFilesTool()
	if err != nil {
		t.Fatalf("NewSearchFilesTool error: %v", err)
	}
	raw, err := searchTool.InvokableRun(context.Background(),
		fmt.Sprintf(`{"path": %q, "pattern": "*.go"}`, dir))
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if !strings.Contains(raw, "main.go") || !strings.Contains(raw, "main_test.go") {
		t.Fatalf("expected go files in results: %s", raw)
	}
	if strings.Contains(raw, "README.md") {
		t.Fatalf("unexpected match: %s", raw)
	}

	if _, err := searchTool.InvokableRun(context.Background(),
		fmt.Sprintf(`{"path": %q, "pattern": ""}`, dir)); err == nil {
		t.Fatal("expected error for empty pattern")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.txt")
	dst := filepath.Join(dir, "sub", "new.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	moveTool, err := NewMoveFileTool()
	if err != nil {
		t.Fatalf("NewMoveFileTool error: %v", err)
	}
	if _, err := moveTool.InvokableRun(context.Background(),
		fmt.Sprintf(`{"path": %q, "destination": %q}`, src, dst)); err != nil {
		t.Fatalf("move error: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source still exists after move")
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Fatalf("destination content wrong: %q, %v", data, err)
	}
}

func TestDeleteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "victim.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deleteTool, err := NewDeleteFileTool()
	if err != nil {
		t.Fatalf("NewDeleteFileTool error: %v", err)
	}
	if _, err := deleteTool.InvokableRun(context.Background(), fmt.Sprintf(`{"path": %q}`, path)); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file still exists after delete")
	}

	// Directories are out of scope for this tool.
	if _, err := deleteTool.InvokableRun(context.Background(), fmt.Sprintf(`{"path": %q}`, dir)); err == nil {
		t.Fatal("expected directory delete to be refused")
	}
}
