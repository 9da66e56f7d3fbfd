// internal/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/oncall/internal/protocol"
)

const fileTimeLayout = "20060102_150405"

// Document is everything a report shows about one analysis
type Document struct {
	AnalysisID      string              `json:"analysis_id"`
	Timestamp       time.Time           `json:"timestamp"`
	Summary         string              `json:"summary"`
	Statistics      protocol.Statistics `json:"statistics"`
	Findings        []protocol.Finding  `json:"findings"`
	Recommendations []string            `json:"recommendations"`
}

// Renderer serializes documents and publishes them under OutputDir
type Renderer struct {
	OutputDir string
}

// NewRenderer creates a renderer writing to dir
func NewRenderer(dir string) *Renderer {
	return &Renderer{OutputDir: dir}
}

// FileName is the published name for doc in format
func FileName(doc Document, format protocol.OutputFormat) string {
	return fmt.Sprintf("analysis_%s_%s%s", doc.AnalysisID, doc.Timestamp.UTC().Format(fileTimeLayout), format.Extension())
}

// Render serializes doc and publishes it. The returned path is only set once
// the file is fully written; on error nothing is left at that path.
func (r *Renderer) Render(doc Document, format protocol.OutputFormat) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case protocol.FormatMarkdown:
		data = []byte(Markdown(doc))
	case protocol.FormatJSON:
		data, err = JSON(doc)
	default:
		err = fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, "", err
	}

	path, err := Publish(r.OutputDir, FileName(doc, format), data)
	if err != nil {
		return nil, "", err
	}
	return data, path, nil
}

// JSON renders doc as indented JSON, findings in the order given
func JSON(doc Document) ([]byte, error) {
	if doc.Findings == nil {
		doc.Findings = []protocol.Finding{}
	}
	if doc.Recommendations == nil {
		doc.Recommendations = []string{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseJSON reads a document produced by JSON
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &doc, nil
}

// Publish writes data to dir/name atomically: a temp file in the same directory
// is written, synced and renamed into place.
func Publish(dir, name string, data []byte) (path string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync report: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err = os.Chmod(tmpName, 0644); err != nil {
		return "", fmt.Errorf("chmod report: %w", err)
	}

	path = filepath.Join(dir, name)
	if err = os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	return path, nil
}
