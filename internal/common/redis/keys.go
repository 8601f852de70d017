package redis

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/edgecomet/pagegraph/internal/common/urlutil"
)

const (
	exportKeyPrefix = "pagegraph:export:"
	latestKeyPrefix = "pagegraph:latest:"
)

// URLHash returns the hex xxhash of the normalized page URL.
// Fragments and scheme or host case do not change the hash.
func URLHash(pageURL string) string {
	return strconv.FormatUint(xxhash.Sum64String(urlutil.Normalize(pageURL)), 16)
}

// ExportKey is the hash holding one stored trace export
func ExportKey(urlHash, traceID string) string {
	return fmt.Sprintf("%s%s:%s", exportKeyPrefix, urlHash, traceID)
}

// LatestKey points at the trace ID most recently stored for a URL
func LatestKey(urlHash string) string {
	return latestKeyPrefix + urlHash
}
