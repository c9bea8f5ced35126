package domain

import (
	"fmt"
	"strings"

	"github.com/rpattn/stackshift/pkg/fieldpath"
)

// DestinationFieldType enumerates the field types the destination platform
// accepts. Every FieldMapping must declare exactly one of these; the entry
// transformer dispatches on it.
type DestinationFieldType string

const (
	FieldTypeText          DestinationFieldType = "text"
	FieldTypeMultiLineText DestinationFieldType = "multi_line_text"
	FieldTypeJSONRichText  DestinationFieldType = "json_rich_text"
	FieldTypeNumber        DestinationFieldType = "number"
	FieldTypeBoolean       DestinationFieldType = "boolean"
	FieldTypeDate          DestinationFieldType = "isodate"
	FieldTypeDropdown      DestinationFieldType = "dropdown"
	FieldTypeFile          DestinationFieldType = "file"
	FieldTypeLink          DestinationFieldType = "link"
	FieldTypeReference     DestinationFieldType = "reference"
	FieldTypeTaxonomy      DestinationFieldType = "taxonomy"
	FieldTypeGroup         DestinationFieldType = "group"
	FieldTypeGlobalField   DestinationFieldType = "global_field"
	FieldTypeModularBlocks DestinationFieldType = "modular_blocks"
)

// AllFieldTypes lists every accepted destination field type.
var AllFieldTypes = []DestinationFieldType{
	FieldTypeText,
	FieldTypeMultiLineText,
	FieldTypeJSONRichText,
	FieldTypeNumber,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeDropdown,
	FieldTypeFile,
	FieldTypeLink,
	FieldTypeReference,
	FieldTypeTaxonomy,
	FieldTypeGroup,
	FieldTypeGlobalField,
	FieldTypeModularBlocks,
}

// Valid reports whether t is one of the accepted destination field types.
func (t DestinationFieldType) Valid() bool {
	for _, known := range AllFieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Composite reports whether the type carries its own nested field schema.
func (t DestinationFieldType) Composite() bool {
	switch t {
	case FieldTypeGroup, FieldTypeGlobalField, FieldTypeModularBlocks:
		return true
	default:
		return false
	}
}

// ChoiceOption is one key/value pair of a dropdown field.
type ChoiceOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FieldSettings is the curated "advanced" bag attached to a field mapping.
type FieldSettings struct {
	Mandatory      bool           `json:"mandatory,omitempty"`
	Unique         bool           `json:"unique,omitempty"`
	Multiple       bool           `json:"multiple,omitempty"`
	NonLocalizable bool           `json:"non_localizable,omitempty"`
	Validation     string         `json:"validation,omitempty"`
	DefaultValue   string         `json:"default_value,omitempty"`
	Options        []ChoiceOption `json:"options,omitempty"`
	// ReferenceTo lists destination content type UIDs a reference field may
	// point at. Non-empty once a curator confirms the mapping.
	ReferenceTo []string `json:"reference_to,omitempty"`
	// TaxonomyRefs lists taxonomy UIDs a taxonomy field draws terms from.
	TaxonomyRefs []string `json:"taxonomy_refs,omitempty"`
}

// FieldMapping maps one source field onto one destination field. Composite
// types (group, global_field, modular_blocks) carry their nested schema in
// Children; the entry transformer walks that tree recursively. Mappings are
// owned by the project persistence layer and are read-only to the engine.
type FieldMapping struct {
	SourceField string               `json:"source_field"`
	SourceType  string               `json:"source_type,omitempty"`
	UID         string               `json:"uid"`
	Path        string               `json:"path,omitempty"`
	DisplayName string               `json:"display_name,omitempty"`
	Type        DestinationFieldType `json:"type"`
	Settings    FieldSettings        `json:"settings,omitempty"`
	// Deleted marks a mapping superseded by a curator edit. Deleted
	// mappings are never re-applied.
	Deleted  bool           `json:"deleted,omitempty"`
	Children []FieldMapping `json:"children,omitempty"`
}

// ChildByUID returns the nested mapping with the given UID, or nil.
func (f FieldMapping) ChildByUID(uid string) *FieldMapping {
	for i := range f.Children {
		if f.Children[i].UID == uid {
			return &f.Children[i]
		}
	}
	return nil
}

// PathLeaf returns the last segment of the dotted ancestry path.
func (f FieldMapping) PathLeaf() string {
	if f.Path == "" {
		return f.UID
	}
	return fieldpath.Leaf(f.Path)
}

// ContentTypeMapping groups the ordered field mappings of one source content
// type under a destination content type UID.
type ContentTypeMapping struct {
	SourceType  string         `json:"source_type"`
	UID         string         `json:"uid"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Fields      []FieldMapping `json:"fields"`
}

// ActiveFields returns the mappings that are not marked deleted, in order.
func (c ContentTypeMapping) ActiveFields() []FieldMapping {
	active := make([]FieldMapping, 0, len(c.Fields))
	for _, field := range c.Fields {
		if field.Deleted {
			continue
		}
		active = append(active, field)
	}
	return active
}

// FieldByUID returns the first non-deleted mapping with the given UID.
func (c ContentTypeMapping) FieldByUID(uid string) (FieldMapping, bool) {
	for _, field := range c.Fields {
		if field.UID == uid && !field.Deleted {
			return field, true
		}
	}
	return FieldMapping{}, false
}

// Validate checks the structural invariants of a content type mapping:
// field UIDs unique within the content type, declared types drawn from the
// fixed enumeration, confirmed reference and taxonomy fields carrying a
// non-empty target list, and nested paths ending in the field's own UID.
func (c ContentTypeMapping) Validate() error {
	if strings.TrimSpace(c.UID) == "" {
		return fmt.Errorf("content type %q: destination uid is required", c.SourceType)
	}
	seen := make(map[string]struct{}, len(c.Fields))
	return validateFields(c.UID, c.Fields, seen)
}

func validateFields(ctUID string, fields []FieldMapping, seen map[string]struct{}) error {
	for _, field := range fields {
		if field.Deleted {
			continue
		}
		if field.UID == "" {
			return fmt.Errorf("content type %s: field %q has no destination uid", ctUID, field.SourceField)
		}
		if _, dup := seen[field.UID]; dup {
			return fmt.Errorf("content type %s: duplicate field uid %s", ctUID, field.UID)
		}
		seen[field.UID] = struct{}{}

		if !field.Type.Valid() {
			return fmt.Errorf("content type %s: field %s has unknown type %q", ctUID, field.UID, field.Type)
		}
		if field.Path != "" && field.PathLeaf() != field.UID {
			return fmt.Errorf("content type %s: field %s path %q does not end in its uid", ctUID, field.UID, field.Path)
		}
		if field.Type.Composite() {
			for _, child := range field.Children {
				if child.Deleted || child.Path == "" {
					continue
				}
				if field.Path != "" && !fieldpath.IsAncestorOf(field.Path, child.Path) {
					return fmt.Errorf("content type %s: field %s path %q is not nested under %q", ctUID, child.UID, child.Path, field.Path)
				}
			}
		}
		if field.Type == FieldTypeReference && len(field.Settings.ReferenceTo) == 0 {
			return fmt.Errorf("content type %s: reference field %s has no target content types", ctUID, field.UID)
		}
		if field.Type == FieldTypeTaxonomy && len(field.Settings.TaxonomyRefs) == 0 {
			return fmt.Errorf("content type %s: taxonomy field %s has no target taxonomies", ctUID, field.UID)
		}
		if field.Type.Composite() {
			if err := validateFields(ctUID, field.Children, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
