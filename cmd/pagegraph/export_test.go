package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/pagegraph/internal/browser"
	"github.com/edgecomet/pagegraph/internal/common/config"
	"github.com/edgecomet/pagegraph/internal/graph"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
	"github.com/edgecomet/pagegraph/internal/har"
	"github.com/edgecomet/pagegraph/pkg/types"
)

func testResult() *browser.Result {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	loaded := start.Add(800 * time.Millisecond)
	return &browser.Result{
		TraceID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		URL:            "https://example.com/",
		Duration:       1500 * time.Millisecond,
		Requests:       2,
		BrowserVersion: "HeadlessChrome/124.0",
		Snapshot: &graph.Snapshot{
			DocumentURL:    "https://example.com/",
			EarliestSource: "https://example.com/",
			PageLoadStart:  &start,
			OnLoad:         &loaded,
			CapturedAt:     loaded,
			Resources: []graph.ResourceView{
				{Type: resource.TypeDocument, URL: "https://example.com/", ResponseCode: 200, RequestTime: &start},
				{Type: resource.TypeScript, URL: "https://example.com/app.js", ResponseCode: 200, LiveElements: 1},
			},
		},
	}
}

func TestEncodeResult_JSON(t *testing.T) {
	data, err := encodeResult(testResult(), types.OutputJSON)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", got["trace_id"])
	assert.Equal(t, float64(1500), got["duration_ms"])
	assert.Equal(t, false, got["timed_out"])

	graphJSON, ok := got["graph"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://example.com/", graphJSON["document_url"])
	resources, ok := graphJSON["resources"].([]interface{})
	require.True(t, ok)
	require.Len(t, resources, 2)
	assert.Equal(t, "js", resources[1].(map[string]interface{})["type"])
}

func TestEncodeResult_HAR(t *testing.T) {
	data, err := encodeResult(testResult(), types.OutputHAR)
	require.NoError(t, err)

	var got har.HAR
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Log.Entries, 2)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", got.Metadata.TraceID)
}

func TestEncodeResult_Errors(t *testing.T) {
	_, err := encodeResult(nil, types.OutputHAR)
	assert.ErrorIs(t, err, browser.ErrNoSnapshot)

	_, err = encodeResult(&browser.Result{}, types.OutputHAR)
	assert.ErrorIs(t, err, browser.ErrNoSnapshot)

	_, err = encodeResult(testResult(), types.OutputFormat("xml"))
	assert.Error(t, err)
}

func TestOutputWriter_Stdout(t *testing.T) {
	var buf bytes.Buffer
	w, err := newOutputWriter("-", types.OutputHAR, 3, &buf)
	require.NoError(t, err)

	target, err := w.Write("https://example.com/", "trace", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "-", target)

	_, err = w.Write("https://example.com/b", "trace", []byte(`{"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
}

func TestOutputWriter_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.har")
	w, err := newOutputWriter(path, types.OutputHAR, 1, nil)
	require.NoError(t, err)

	target, err := w.Write("https://example.com/", "trace", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, path, target)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestOutputWriter_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	w, err := newOutputWriter(dir, types.OutputJSON, 2, nil)
	require.NoError(t, err)

	target, err := w.Write("https://example.com/", "0f8fad5b-d9cb", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(target))
	assert.True(t, strings.HasSuffix(target, "-0f8fad5b.json"))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestOutputWriter_ExistingFileWithManyPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.har")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := newOutputWriter(path, types.OutputHAR, 2, nil)
	assert.Error(t, err)
}

func TestExportFileName(t *testing.T) {
	a := exportFileName("https://example.com/", "abcdef0123456789", types.OutputHAR)
	b := exportFileName("https://EXAMPLE.com/#top", "abcdef0123456789", types.OutputHAR)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasSuffix(a, "-abcdef01.har"))

	assert.True(t, strings.HasSuffix(exportFileName("https://example.com/", "id", types.OutputJSON), "-id.json"))
}

func TestApplyFlags(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.NoError(t, applyFlags(cfg, "JSON", "out/", false, true))
	assert.Equal(t, types.OutputJSON, cfg.Output.Format)
	assert.Equal(t, "out/", cfg.Output.Path)
	assert.True(t, cfg.Chrome.AllowPrivate)
	assert.False(t, cfg.Storage.Enabled)

	assert.Error(t, applyFlags(cfg, "xml", "", false, false))

	cfg, err = config.Load("")
	require.NoError(t, err)
	cfg.Storage.Redis.Addr = ""
	assert.Error(t, applyFlags(cfg, "", "", true, false), "storage needs a redis address")
}
