package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

const maxSearchMatches = 200

// Filesystem tools perform plain IO. Boundary and risk checks happen in
// the registry guard before any of these run, so the implementations stay
// free of policy logic.

// ReadFileInput parameters for read_file tool
type ReadFileInput struct {
	Path   string `json:"path" jsonschema:"required,description=Absolute path to the file"`
	Offset int    `json:"offset" jsonschema:"description=Starting line number (0-based)"`
	Limit  int    `json:"limit" jsonschema:"description=Maximum number of lines to read"`
}

// ReadFileOutput result of read_file tool
type ReadFileOutput struct {
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
}

type readFileToolImpl struct{}

func (t *readFileToolImpl) execute(ctx context.Context, input *ReadFileInput) (*ReadFileOutput, error) {
	data, err := os.ReadFile(input.Path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	if input.Offset > 0 {
		if input.Offset >= len(lines) {
			lines = []string{}
		} else {
			lines = lines[input.Offset:]
		}
	}
	if input.Limit > 0 && input.Limit < len(lines) {
		lines = lines[:input.Limit]
	}

	return &ReadFileOutput{
		Content:    strings.Join(lines, "\n"),
		TotalLines: totalLines,
	}, nil
}

// NewReadFileTool creates the read_file tool
func NewReadFileTool() (tool.InvokableTool, error) {
	impl := &readFileToolImpl{}
	return utils.InferTool("read_file", "Read the contents of a file", impl.execute)
}

// WriteFileInput parameters for write_file tool
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=Absolute path to the file"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

type writeFileToolImpl struct{}

func (t *writeFileToolImpl) execute(ctx context.Context, input *WriteFileInput) (string, error) {
	if err := os.MkdirAll(filepath.Dir(input.Path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(input.Path, []byte(input.Content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path), nil
}

// NewWriteFileTool creates the write_file tool
func NewWriteFileTool() (tool.InvokableTool, error) {
	impl := &writeFileToolImpl{}
	return utils.InferTool("write_file", "Write content to a file", impl.execute)
}

// ListDirInput parameters for list_dir tool
type ListDirInput struct {
	Path string `json:"path" jsonschema:"required,description=Directory path to list"`
}

type listDirToolImpl struct{}

func (t *listDirToolImpl) execute(ctx context.Context, input *ListDirInput) ([]string, error) {
	entries, err := os.ReadDir(input.Path)
	if err != nil {
		return nil, err
	}

	var result []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		result = append(result, name)
	}
	return result, nil
}

// NewListDirTool creates the list_dir tool
func NewListDirTool() (tool.InvokableTool, error) {
	impl := &listDirToolImpl{}
	return utils.InferTool("list_dir", "List contents of a directory", impl.execute)
}

// SearchFilesInput parameters for search_files tool
type SearchFilesInput struct {
	Path    string `json:"path" jsonschema:"required,description=Directory to search under"`
	Pattern string `json:"pattern" jsonschema:"required,description=Glob or substring matched against file names"`
}

type searchFilesToolImpl struct{}

func (t *searchFilesToolImpl) execute(ctx context.Context, input *SearchFilesInput) ([]string, error) {
	pattern := strings.TrimSpace(input.Pattern)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	var matches []string
	err := filepath.WalkDir(input.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		globMatch, globErr := filepath.Match(pattern, name)
		if (globErr == nil && globMatch) || strings.Contains(name, pattern) {
			matches = append(matches, path)
			if len(matches) >= maxSearchMatches {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

// NewSearchFilesTool creates the search_files tool
func NewSearchFilesTool() (tool.InvokableTool, error) {
	impl := &searchFilesToolImpl{}
	return utils.InferTool("search_files", "Search for files by name under a directory", impl.execute)
}

// MoveFileInput parameters for move_file tool
type MoveFileInput struct {
	Path        string `json:"path" jsonschema:"required,description=Source path"`
	Destination string `json:"destination" jsonschema:"required,description=Destination path"`
}

type moveFileToolImpl struct{}

func (t *moveFileToolImpl) execute(ctx context.Context, input *MoveFileInput) (string, error) {
	if err := os.MkdirAll(filepath.Dir(input.Destination), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(input.Path, input.Destination); err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %s to %s", input.Path, input.Destination), nil
}

// NewMoveFileTool creates the move_file tool
func NewMoveFileTool() (tool.InvokableTool, error) {
	impl := &moveFileToolImpl{}
	return utils.InferTool("move_file", "Move or rename a file", impl.execute)
}

// DeleteFileInput parameters for delete_file tool
type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"required,description=Path to delete"`
}

type deleteFileToolImpl struct{}

func (t *deleteFileToolImpl) execute(ctx context.Context, input *DeleteFileInput) (string, error) {
	info, err := os.Stat(input.Path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("refusing to delete directory %s", input.Path)
	}
	if err := os.Remove(input.Path); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %s", input.Path), nil
}

// NewDeleteFileTool creates the delete_file tool
func NewDeleteFileTool() (tool.InvokableTool, error) {
	impl := &deleteFileToolImpl{}
	return utils.InferTool("delete_file", "Delete a single file", impl.execute)
}
