// Package export writes export artifacts and encodes tasks and projects as JSON or CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
	"github.com/spf13/afero"
)

type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", JSON:
		return JSON, nil
	case CSV:
		return CSV, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q (json or csv)", s)
	}
}

// Writer commits one artifact.
type Writer interface {
	Write(ctx context.Context, path string, content []byte) error
}

// FSWriter writes artifacts to an afero filesystem, creating parent directories.
type FSWriter struct {
	FS afero.Fs
}

func NewOSWriter() *FSWriter {
	return &FSWriter{FS: afero.NewOsFs()}
}

func (w *FSWriter) Write(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(w.FS, path, content, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// Indented encodes v as indented JSON.
func Indented(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func ptrInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Tasks(f Format, tasks []omnifocus.Task) ([]byte, error) {
	if f != CSV {
		return Indented(tasks)
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID, t.Name, t.Project, strings.Join(t.Tags, ";"),
			strconv.FormatBool(t.Flagged), strconv.FormatBool(t.Completed),
			date(t.DueDate), date(t.DeferDate), date(t.CompletionDate), t.Note,
		})
	}
	return writeCSV([]string{"id", "name", "project", "tags", "flagged", "completed", "dueDate", "deferDate", "completionDate", "note"}, rows)
}

func Projects(f Format, projects []omnifocus.Project) ([]byte, error) {
	if f != CSV {
		return Indented(projects)
	}
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.ID, p.Name, p.Status, p.Folder, strconv.FormatBool(p.Flagged),
			date(p.DueDate), date(p.CompletionDate), ptrInt(p.TaskCount), ptrInt(p.AvailableTaskCount),
		})
	}
	return writeCSV([]string{"id", "name", "status", "folder", "flagged", "dueDate", "completionDate", "taskCount", "availableTaskCount"}, rows)
}
