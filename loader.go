package operations

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format selects the decoder for a workflow document.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath derives the document format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// ParseWorkflow decodes a workflow document.
func ParseWorkflow(name string, data []byte, format Format) (Workflow, error) {
	doc := map[string]any{}
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return Workflow{}, NewError(ErrInvalidWorkflow, "workflow "+name+": "+err.Error(), err, map[string]any{"workflow": name})
		}
	case FormatYAML, FormatJSON:
		// yaml can handle JSON too
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Workflow{}, NewError(ErrInvalidWorkflow, "workflow "+name+": "+err.Error(), err, map[string]any{"workflow": name})
		}
	default:
		return Workflow{}, NewError(ErrUnsupportedFormat, "", nil, map[string]any{
			"workflow": name,
			"format":   string(format),
		})
	}
	return workflowFromDocument(name, doc)
}

// LoadWorkflowFile reads and parses one workflow file.
func LoadWorkflowFile(path string) (Workflow, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return Workflow{}, NewError(ErrUnsupportedFormat, "", nil, map[string]any{"path": path})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, NewError(ErrInvalidWorkflow, "read "+path, err, map[string]any{"path": path})
	}
	return ParseWorkflow(workflowName(path), data, format)
}

// LoadResult pairs a workflow file with its parse outcome.
type LoadResult struct {
	Path     string
	Workflow Workflow
	Err      error
}

// LoadWorkflowDir parses every workflow file in dir in lexical filename
// order. Files with unknown extensions are ignored; a missing directory
// yields no results.
func LoadWorkflowDir(dir string) ([]LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewError(ErrInvalidWorkflow, "read workflow directory "+dir, err, map[string]any{"dir": dir})
	}

	var results []LoadResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := FormatFromPath(path); !ok {
			continue
		}
		wf, err := LoadWorkflowFile(path)
		results = append(results, LoadResult{Path: path, Workflow: wf, Err: err})
	}
	return results, nil
}

func workflowName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
