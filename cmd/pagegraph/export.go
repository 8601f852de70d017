package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgecomet/pagegraph/internal/browser"
	"github.com/edgecomet/pagegraph/internal/common/redis"
	"github.com/edgecomet/pagegraph/internal/graph"
	"github.com/edgecomet/pagegraph/internal/har"
	"github.com/edgecomet/pagegraph/pkg/types"
)

// graphExport is the json output format
type graphExport struct {
	TraceID        string          `json:"trace_id"`
	URL            string          `json:"url"`
	BrowserVersion string          `json:"browser_version,omitempty"`
	DurationMs     int64           `json:"duration_ms"`
	TimedOut       bool            `json:"timed_out"`
	Requests       int             `json:"requests"`
	Graph          *graph.Snapshot `json:"graph"`
}

func encodeResult(res *browser.Result, format types.OutputFormat) ([]byte, error) {
	if res == nil || res.Snapshot == nil {
		return nil, browser.ErrNoSnapshot
	}

	switch format {
	case types.OutputJSON:
		return json.Marshal(graphExport{
			TraceID:        res.TraceID,
			URL:            res.URL,
			BrowserVersion: res.BrowserVersion,
			DurationMs:     res.Duration.Milliseconds(),
			TimedOut:       res.TimedOut,
			Requests:       res.Requests,
			Graph:          res.Snapshot,
		})
	case types.OutputHAR:
		return json.Marshal(har.FromSnapshot(res.Snapshot, res.TraceID, res.BrowserVersion))
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// outputWriter routes exports to stdout, a single file or one file per page
// inside a directory
type outputWriter struct {
	path   string
	format types.OutputFormat
	stdout io.Writer
	dir    bool
}

func newOutputWriter(path string, format types.OutputFormat, pages int, stdout io.Writer) (*outputWriter, error) {
	w := &outputWriter{path: path, format: format, stdout: stdout}
	if path == "-" || path == "" {
		return w, nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		w.dir = true
	case err == nil:
		if pages > 1 {
			return nil, fmt.Errorf("output %s must be a directory when tracing %d pages", path, pages)
		}
	case os.IsNotExist(err):
		if pages > 1 || strings.HasSuffix(path, string(os.PathSeparator)) {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create output directory: %w", err)
			}
			w.dir = true
		}
	default:
		return nil, fmt.Errorf("failed to stat output: %w", err)
	}
	return w, nil
}

// Write stores one export and returns where it went
func (w *outputWriter) Write(pageURL, traceID string, data []byte) (string, error) {
	if w.path == "-" || w.path == "" {
		if _, err := w.stdout.Write(append(data, '\n')); err != nil {
			return "", fmt.Errorf("failed to write export: %w", err)
		}
		return "-", nil
	}

	target := w.path
	if w.dir {
		target = filepath.Join(w.path, exportFileName(pageURL, traceID, w.format))
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return target, nil
}

func exportFileName(pageURL, traceID string, format types.OutputFormat) string {
	id := traceID
	if len(id) > 8 {
		id = id[:8]
	}
	return redis.URLHash(pageURL) + "-" + id + format.Extension()
}
