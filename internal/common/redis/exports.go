package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/common/compress"
	"github.com/edgecomet/pagegraph/pkg/types"
)

// DefaultExportTTL applies when the store is created with a zero TTL
const DefaultExportTTL = 24 * time.Hour

const (
	fieldData     = "data"
	fieldCodec    = "codec"
	fieldFormat   = "format"
	fieldURL      = "url"
	fieldStoredAt = "stored_at"
	fieldSize     = "size"
)

// StoredExport is one trace export read back from Redis
type StoredExport struct {
	TraceID  string
	URL      string
	Format   types.OutputFormat
	StoredAt time.Time
	Data     []byte
}

// ExportStore keeps compressed trace exports per page URL
type ExportStore struct {
	client      *Client
	compression types.CompressionFormat
	ttl         time.Duration
	now         func() time.Time
}

func NewExportStore(client *Client, compression types.CompressionFormat, ttl time.Duration) *ExportStore {
	if ttl <= 0 {
		ttl = DefaultExportTTL
	}
	if !compression.Valid() {
		compression = types.CompressionNone
	}
	return &ExportStore{
		client:      client,
		compression: compression,
		ttl:         ttl,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Store saves data under a fresh trace ID and makes it the latest export
// for pageURL. Returns the trace ID.
func (s *ExportStore) Store(ctx context.Context, pageURL string, format types.OutputFormat, data []byte) (string, error) {
	traceID := uuid.NewString()
	if err := s.Put(ctx, pageURL, traceID, format, data); err != nil {
		return "", err
	}
	return traceID, nil
}

// Put saves data under traceID and makes it the latest export for pageURL
func (s *ExportStore) Put(ctx context.Context, pageURL, traceID string, format types.OutputFormat, data []byte) error {
	if traceID == "" {
		return fmt.Errorf("trace id is required")
	}
	urlHash := URLHash(pageURL)
	key := ExportKey(urlHash, traceID)

	payload, codec, err := compress.Compress(data, s.compression)
	if err != nil {
		return fmt.Errorf("failed to compress export: %w", err)
	}

	err = s.client.HSetWithExpire(ctx, key, s.ttl,
		fieldData, payload,
		fieldCodec, string(codec),
		fieldFormat, string(format),
		fieldURL, pageURL,
		fieldStoredAt, s.now().Format(time.RFC3339Nano),
		fieldSize, len(data),
	)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, LatestKey(urlHash), traceID, s.ttl); err != nil {
		return err
	}

	s.client.logger.Debug("Stored trace export",
		zap.String("url", pageURL),
		zap.String("trace_id", traceID),
		zap.String("codec", string(codec)),
		zap.Int("size", len(data)),
		zap.Int("stored_size", len(payload)))

	return nil
}

// Get returns nil and no error when the export does not exist or has expired
func (s *ExportStore) Get(ctx context.Context, pageURL, traceID string) (*StoredExport, error) {
	fields, err := s.client.HGetAll(ctx, ExportKey(URLHash(pageURL), traceID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	data, err := compress.Decompress([]byte(fields[fieldData]), types.CompressionFormat(fields[fieldCodec]))
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", traceID, err)
	}
	if size, err := strconv.Atoi(fields[fieldSize]); err == nil && size != len(data) {
		return nil, fmt.Errorf("failed to read export %s: size mismatch (stored %d, got %d)", traceID, size, len(data))
	}

	export := &StoredExport{
		TraceID: traceID,
		URL:     fields[fieldURL],
		Format:  types.OutputFormat(fields[fieldFormat]),
		Data:    data,
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldStoredAt]); err == nil {
		export.StoredAt = ts
	}
	return export, nil
}

// Latest returns the most recent export for pageURL, nil when none is stored
func (s *ExportStore) Latest(ctx context.Context, pageURL string) (*StoredExport, error) {
	traceID, err := s.client.Get(ctx, LatestKey(URLHash(pageURL)))
	if err != nil {
		return nil, err
	}
	if traceID == "" {
		return nil, nil
	}
	return s.Get(ctx, pageURL, traceID)
}

// Delete removes one export. The latest pointer is dropped when it refers to it.
func (s *ExportStore) Delete(ctx context.Context, pageURL, traceID string) error {
	urlHash := URLHash(pageURL)
	keys := []string{ExportKey(urlHash, traceID)}

	latest, err := s.client.Get(ctx, LatestKey(urlHash))
	if err != nil {
		return err
	}
	if latest == traceID {
		keys = append(keys, LatestKey(urlHash))
	}
	return s.client.Del(ctx, keys...)
}
