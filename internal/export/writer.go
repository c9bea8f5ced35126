// Package export writes the migrated stack directory: schemas, entries,
// assets, taxonomies, locales and the run manifest. Schema files are fully
// regenerated each run; entry indexes, global fields and references merge
// with what a previous run left behind.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rpattn/stackshift/internal/assets"
	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/pkg/logger"
)

// Writer lays out one destination stack directory.
type Writer struct {
	dir string
	log *logger.Logger
}

// NewWriter creates a writer rooted at the stack directory.
func NewWriter(dir string, log *logger.Logger) *Writer {
	return &Writer{dir: dir, log: log}
}

// Dir returns the stack root.
func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) writeJSON(relPath string, value any, pretty bool) error {
	full := filepath.Join(w.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", relPath, err)
	}
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return fmt.Errorf("marshal %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}

func (w *Writer) readJSON(relPath string, into any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, relPath))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", relPath, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decode %s: %w", relPath, err)
	}
	return true, nil
}

// WriteContentTypes regenerates the per-content-type schema files and the
// combined array. Human-reviewed, so pretty-printed.
func (w *Writer) WriteContentTypes(mappings []domain.ContentTypeMapping) error {
	for _, mapping := range mappings {
		relPath := filepath.Join("content_types", sanitizeFileComponent(mapping.UID)+".json")
		if err := w.writeJSON(relPath, mapping, true); err != nil {
			return err
		}
	}
	return w.writeJSON(filepath.Join("content_types", "schema.json"), mappings, true)
}

// WriteEntries writes one compact entries file per content type and locale
// and folds the file into the persisted entries index.
func (w *Writer) WriteEntries(contentTypeUID, locale string, entries []domain.Entry) error {
	name := filepath.Join("entries", sanitizeFileComponent(contentTypeUID), sanitizeFileComponent(locale)+".json")
	if err := w.writeJSON(name, entries, false); err != nil {
		return err
	}

	index := map[string]string{}
	if _, err := w.readJSON(filepath.Join("entries", "index.json"), &index); err != nil {
		return err
	}
	index[contentTypeUID+"/"+locale] = filepath.ToSlash(name)
	return w.writeJSON(filepath.Join("entries", "index.json"), index, true)
}

// WriteAssets writes the combined asset schema keyed by uid and the failed
// assets file. An empty failed list still writes the file so a retry pass
// has a definite input.
func (w *Writer) WriteAssets(assetMap *domain.AssetMap, failed []domain.FailedAssetRecord) error {
	records := assetMap.Records()
	byUID := make(map[string]domain.AssetRecord, len(records))
	for _, record := range records {
		byUID[record.UID] = record
	}
	if err := w.writeJSON(filepath.Join("assets", "assets.json"), byUID, false); err != nil {
		return err
	}
	if failed == nil {
		failed = []domain.FailedAssetRecord{}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].SourceID < failed[j].SourceID })
	return w.writeJSON(filepath.Join("assets", "failed.json"), failed, true)
}

// WriteTaxonomies writes one pretty file per vocabulary and a consolidated
// index of every term.
func (w *Writer) WriteTaxonomies(vocabularies []domain.Vocabulary) error {
	index := make(map[string][]domain.TaxonomyTerm, len(vocabularies))
	for _, vocab := range vocabularies {
		relPath := filepath.Join("taxonomies", sanitizeFileComponent(vocab.UID)+".json")
		if err := w.writeJSON(relPath, vocab, true); err != nil {
			return err
		}
		index[vocab.UID] = vocab.Terms
	}
	return w.writeJSON(filepath.Join("taxonomies", "index.json"), index, true)
}

// WriteLocales writes the three locale files: master only, non-master only
// and the combined list keyed by locale code.
func (w *Writer) WriteLocales(set domain.LocaleSet) error {
	if err := w.writeJSON(filepath.Join("locales", "master-locale.json"), set.Master, true); err != nil {
		return err
	}
	if err := w.writeJSON(filepath.Join("locales", "locales.json"), set.NonMaster, true); err != nil {
		return err
	}
	combined := make(map[string]domain.LocaleEntry, len(set.NonMaster)+1)
	combined[set.Master.Code] = set.Master
	for _, entry := range set.NonMaster {
		combined[entry.Code] = entry
	}
	return w.writeJSON(filepath.Join("locales", "all-locales.json"), combined, true)
}

// WriteGlobalFields merges the run's global field schemas into the
// persisted file by uid. A uid already present keeps its curated version;
// new uids are appended.
func (w *Writer) WriteGlobalFields(incoming []domain.FieldMapping) error {
	relPath := filepath.Join("global_fields", "globals.json")
	var existing []domain.FieldMapping
	if _, err := w.readJSON(relPath, &existing); err != nil {
		return err
	}

	known := make(map[string]struct{}, len(existing))
	for _, field := range existing {
		known[field.UID] = struct{}{}
	}
	merged := existing
	for _, field := range incoming {
		if _, dup := known[field.UID]; dup {
			continue
		}
		known[field.UID] = struct{}{}
		merged = append(merged, field)
	}
	return w.writeJSON(relPath, merged, true)
}

// Manifest records what produced the stack and when.
type Manifest struct {
	RunID         string         `json:"run_id"`
	Source        string         `json:"source"`
	SchemaVersion string         `json:"schema_version"`
	CreatedAt     time.Time      `json:"created_at"`
	Counts        map[string]int `json:"counts"`
}

// SchemaVersion is the current stack layout version.
const SchemaVersion = "1.0"

// WriteManifest writes the version/manifest file.
func (w *Writer) WriteManifest(manifest Manifest) error {
	return w.writeJSON(filepath.Join("export", "manifest.json"), manifest, true)
}

// WriteAssetSummary persists the pass summaries next to the asset files.
func (w *Writer) WriteAssetSummary(initial, retry assets.Summary) error {
	return w.writeJSON(filepath.Join("assets", "summary.json"), map[string]assets.Summary{
		"initial": initial,
		"retry":   retry,
	}, true)
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	if builder.Len() == 0 {
		return "unnamed"
	}
	return builder.String()
}
