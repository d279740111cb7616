// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const bashTimeout = 2 * time.Minute

// Toolset is the local toolset the model can call: shell commands and
// file operations rooted at a working directory. Tool failures produce
// is_error results for the model, never turn errors.
type Toolset struct {
	root string
}

// NewToolset creates a toolset rooted at dir. Empty dir means the
// process working directory.
func NewToolset(dir string) *Toolset {
	if dir == "" {
		dir = "."
	}
	return &Toolset{root: dir}
}

// Params returns the tool declarations for the API request.
func (t *Toolset) Params() []anthropic.ToolUnionParam {
	declarations := []anthropic.ToolParam{
		{
			Name:        "bash",
			Description: anthropic.String("Run a shell command and return its combined output. Commands run in the workspace directory with a 2 minute timeout."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The shell command to run.",
					},
				},
				Required: []string{"command"},
			},
		},
		{
			Name:        "read_file",
			Description: anthropic.String("Read a file and return its contents."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path to the file, absolute or relative to the workspace.",
					},
				},
				Required: []string{"file_path"},
			},
		},
		{
			Name:        "write_file",
			Description: anthropic.String("Write content to a file, creating parent directories as needed."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path to the file, absolute or relative to the workspace.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The full file content to write.",
					},
				},
				Required: []string{"file_path", "content"},
			},
		},
		{
			Name:        "list_files",
			Description: anthropic.String("List files matching a glob pattern."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Glob pattern, relative to the workspace (e.g. \"**/*.go\").",
					},
				},
				Required: []string{"pattern"},
			},
		},
	}

	params := make([]anthropic.ToolUnionParam, len(declarations))
	for i := range declarations {
		params[i] = anthropic.ToolUnionParam{OfTool: &declarations[i]}
	}
	return params
}

// Run executes one tool call. The returned string is the tool output
// or error text; isError reports which.
func (t *Toolset) Run(ctx context.Context, name string, rawInput []byte) (output string, isError bool) {
	var input map[string]any
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return fmt.Sprintf("invalid tool input: %v", err), true
	}

	var err error
	switch name {
	case "bash":
		output, err = t.runBash(ctx, stringField(input, "command"))
	case "read_file":
		output, err = t.readFile(stringField(input, "file_path"))
	case "write_file":
		output, err = t.writeFile(stringField(input, "file_path"), stringField(input, "content"))
	case "list_files":
		output, err = t.listFiles(stringField(input, "pattern"))
	default:
		return fmt.Sprintf("unknown tool %q", name), true
	}
	if err != nil {
		return err.Error(), true
	}
	return output, false
}

func (t *Toolset) runBash(ctx context.Context, command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("bash: command is required")
	}

	ctx, cancel := context.WithTimeout(ctx, bashTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.root
	combined, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %s\n%s", bashTimeout, combined)
		}
		return "", fmt.Errorf("command failed: %v\n%s", err, combined)
	}
	return string(combined), nil
}

func (t *Toolset) readFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("read_file: file_path is required")
	}
	data, err := os.ReadFile(t.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

func (t *Toolset) writeFile(path, content string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("write_file: file_path is required")
	}
	resolved := t.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (t *Toolset) listFiles(pattern string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("list_files: pattern is required")
	}
	matches, err := filepath.Glob(t.resolve(pattern))
	if err != nil {
		return "", fmt.Errorf("list_files: %w", err)
	}
	for i, match := range matches {
		if relative, relErr := filepath.Rel(t.root, match); relErr == nil {
			matches[i] = relative
		}
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return "no matches", nil
	}
	return strings.Join(matches, "\n"), nil
}

func (t *Toolset) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.root, path)
}

// toolDetail extracts a short human-readable summary from a tool
// input: the command for shell calls, the path for file operations,
// the pattern for globs. Empty when none apply.
func toolDetail(rawInput []byte) string {
	var input map[string]any
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return ""
	}
	for _, field := range []string{"command", "file_path", "pattern"} {
		if value := stringField(input, field); value != "" {
			return value
		}
	}
	return ""
}

func stringField(input map[string]any, field string) string {
	value, _ := input[field].(string)
	return value
}
