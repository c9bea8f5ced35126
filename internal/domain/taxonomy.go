package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// TaxonomyTerm is one term of a hierarchical vocabulary. ParentUID, when
// non-empty, names another term of the same vocabulary; terms whose parent
// cannot be resolved are attached at the root rather than dropped.
type TaxonomyTerm struct {
	TaxonomyUID string `json:"taxonomy_uid"`
	UID         string `json:"uid"`
	Name        string `json:"name"`
	ParentUID   string `json:"parent_uid,omitempty"`
	Description string `json:"description,omitempty"`
}

// Vocabulary groups the terms of one taxonomy.
type Vocabulary struct {
	UID   string         `json:"uid"`
	Name  string         `json:"name"`
	Terms []TaxonomyTerm `json:"terms"`
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases a name and collapses non-alphanumeric runs to underscores.
func Slug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = slugPattern.ReplaceAllString(value, "_")
	return strings.Trim(value, "_")
}

// TermUID derives the deterministic destination uid for a source term.
func TermUID(vocabularySlug, termID string) string {
	return fmt.Sprintf("%s_%s", vocabularySlug, termID)
}
