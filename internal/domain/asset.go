package domain

import (
	"net/url"
	"sort"
	"strings"
)

// AssetUIDForSource derives the destination asset UID for a source file id.
// The scheme is stable across re-runs, mirroring entry UID derivation.
func AssetUIDForSource(sourceID string) string {
	return "assets_" + sourceID
}

// NormalizeAssetPath reduces a source file URI to the relative path used to
// match rich-text image references against migrated assets. Scheme
// prefixes, host names and percent-encoding are stripped.
func NormalizeAssetPath(uri string) string {
	path := uri
	switch {
	case strings.HasPrefix(path, "public://"):
		path = strings.TrimPrefix(path, "public://")
	case strings.HasPrefix(path, "private://"):
		path = strings.TrimPrefix(path, "private://")
	case strings.Contains(path, "://"):
		if parsed, err := url.Parse(path); err == nil {
			path = parsed.Path
		}
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimPrefix(path, "sites/default/files/")
	return path
}

// AssetRecord describes one migrated binary asset. Records are immutable
// once the download succeeds; entries refer to assets by UID only, so asset
// lifetime is independent of entry lifetime.
type AssetRecord struct {
	UID         string `json:"uid"`
	SourceURI   string `json:"source_uri"`
	ResolvedURL string `json:"url"`
	Filename    string `json:"filename"`
	MimeType    string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"file_size,omitempty"`
	LocalPath   string `json:"-"`
}

// FailedAssetRecord captures an asset whose download failed twice in a row.
// A later retry pass re-attempts exactly these and removes the ones that
// succeed.
type FailedAssetRecord struct {
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// AssetMap indexes successfully migrated assets for rich-text rewriting.
// Keys are normalized source paths and corrected identifiers; values are
// destination asset UIDs.
type AssetMap struct {
	byPath map[string]AssetRecord
	byUID  map[string]AssetRecord
}

// NewAssetMap returns an empty asset map.
func NewAssetMap() *AssetMap {
	return &AssetMap{
		byPath: make(map[string]AssetRecord),
		byUID:  make(map[string]AssetRecord),
	}
}

// Add indexes a record under its UID and its normalized source path.
func (m *AssetMap) Add(record AssetRecord, normalizedPath string) {
	m.byUID[record.UID] = record
	if normalizedPath != "" {
		m.byPath[normalizedPath] = record
	}
}

// ByPath resolves a normalized source path to an asset record.
func (m *AssetMap) ByPath(normalizedPath string) (AssetRecord, bool) {
	record, ok := m.byPath[normalizedPath]
	return record, ok
}

// ByUID resolves a destination asset uid to its record.
func (m *AssetMap) ByUID(uid string) (AssetRecord, bool) {
	record, ok := m.byUID[uid]
	return record, ok
}

// Records returns every indexed asset sorted by uid.
func (m *AssetMap) Records() []AssetRecord {
	records := make([]AssetRecord, 0, len(m.byUID))
	for _, record := range m.byUID {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UID < records[j].UID })
	return records
}

// Len reports how many assets are indexed by uid.
func (m *AssetMap) Len() int {
	return len(m.byUID)
}
