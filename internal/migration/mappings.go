package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/pkg/logger"
)

// LoadMappings reads the curated content type mapping files from dir, one
// JSON file per content type, sorted by file name. The engine treats the
// mappings as read-only input.
func LoadMappings(dir string) ([]domain.ContentTypeMapping, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read mapping directory %s: %w", dir, err)
	}

	var names []string
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") || file.Name() == "limits.json" {
			continue
		}
		names = append(names, file.Name())
	}
	sort.Strings(names)

	mappings := make([]domain.ContentTypeMapping, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read mapping %s: %w", name, err)
		}
		var mapping domain.ContentTypeMapping
		if err := json.Unmarshal(data, &mapping); err != nil {
			return nil, fmt.Errorf("decode mapping %s: %w", name, err)
		}
		if err := mapping.Validate(); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", name, err)
		}
		mappings = append(mappings, mapping)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("mapping directory %s holds no content type mappings", dir)
	}
	return mappings, nil
}

// LoadOrgLimits reads the optional per-organization limits file. Absent
// file means no advisory checks.
func LoadOrgLimits(dir string) (domain.OrgLimits, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "limits.json"))
	if errors.Is(err, os.ErrNotExist) {
		return domain.OrgLimits{}, false, nil
	}
	if err != nil {
		return domain.OrgLimits{}, false, fmt.Errorf("read limits: %w", err)
	}
	var limits domain.OrgLimits
	if err := json.Unmarshal(data, &limits); err != nil {
		return domain.OrgLimits{}, false, fmt.Errorf("decode limits: %w", err)
	}
	return limits, true, nil
}

// ValidateAdvisory logs a warning for every field exceeding the
// organization limits. Limits are advisory; nothing is blocked.
func ValidateAdvisory(mappings []domain.ContentTypeMapping, limits domain.OrgLimits, log *logger.Logger) int {
	warnings := 0
	for _, mapping := range mappings {
		var walk func(fields []domain.FieldMapping)
		walk = func(fields []domain.FieldMapping) {
			for _, field := range fields {
				if field.Deleted {
					continue
				}
				if field.Type == domain.FieldTypeReference &&
					limits.MaxReferenceContentTypes > 0 &&
					len(field.Settings.ReferenceTo) > limits.MaxReferenceContentTypes {
					log.Warnf("content type %s: field %s references %d content types, organization limit is %d",
						mapping.UID, field.UID, len(field.Settings.ReferenceTo), limits.MaxReferenceContentTypes)
					warnings++
				}
				walk(field.Children)
			}
		}
		walk(mapping.Fields)
	}
	return warnings
}
