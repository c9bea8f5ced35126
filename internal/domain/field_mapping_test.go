package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestContentTypeMappingValidate(t *testing.T) {
	mapping := ContentTypeMapping{
		SourceType: "article",
		UID:        "article",
		Title:      "Article",
		Fields: []FieldMapping{
			{SourceField: "title", UID: "title", Type: FieldTypeText},
			{SourceField: "body", UID: "body", Type: FieldTypeJSONRichText},
			{
				SourceField: "field_author",
				UID:         "author",
				Type:        FieldTypeReference,
				Settings:    FieldSettings{ReferenceTo: []string{"person"}},
			},
			{
				SourceField: "field_meta",
				UID:         "meta",
				Type:        FieldTypeGroup,
				Children: []FieldMapping{
					{SourceField: "field_meta_label", UID: "label", Path: "meta.label", Type: FieldTypeText},
				},
			},
		},
	}

	if err := mapping.Validate(); err != nil {
		t.Fatalf("expected valid mapping, got %v", err)
	}
}

func TestContentTypeMappingValidateRejectsDuplicates(t *testing.T) {
	mapping := ContentTypeMapping{
		SourceType: "article",
		UID:        "article",
		Fields: []FieldMapping{
			{SourceField: "title", UID: "title", Type: FieldTypeText},
			{SourceField: "field_title", UID: "title", Type: FieldTypeText},
		},
	}
	err := mapping.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate field uid") {
		t.Fatalf("expected duplicate uid error, got %v", err)
	}
}

func TestContentTypeMappingValidateChecksPathLeaf(t *testing.T) {
	mapping := ContentTypeMapping{
		SourceType: "article",
		UID:        "article",
		Fields: []FieldMapping{
			{
				SourceField: "field_meta",
				UID:         "meta",
				Type:        FieldTypeGroup,
				Children: []FieldMapping{
					{SourceField: "field_meta_label", UID: "label", Path: "meta.wrong", Type: FieldTypeText},
				},
			},
		},
	}
	err := mapping.Validate()
	if err == nil || !strings.Contains(err.Error(), "does not end in its uid") {
		t.Fatalf("expected path leaf error, got %v", err)
	}
}

func TestContentTypeMappingValidateRequiresReferenceTargets(t *testing.T) {
	mapping := ContentTypeMapping{
		SourceType: "article",
		UID:        "article",
		Fields: []FieldMapping{
			{SourceField: "field_author", UID: "author", Type: FieldTypeReference},
		},
	}
	if err := mapping.Validate(); err == nil {
		t.Fatalf("expected error for reference field without targets")
	}
}

func TestContentTypeMappingSkipsDeletedFields(t *testing.T) {
	mapping := ContentTypeMapping{
		SourceType: "article",
		UID:        "article",
		Fields: []FieldMapping{
			{SourceField: "old_title", UID: "title", Type: FieldTypeText, Deleted: true},
			{SourceField: "title", UID: "title", Type: FieldTypeText},
		},
	}
	if err := mapping.Validate(); err != nil {
		t.Fatalf("deleted fields should not count toward uniqueness: %v", err)
	}
	if got := len(mapping.ActiveFields()); got != 1 {
		t.Fatalf("expected 1 active field, got %d", got)
	}
}

func TestEntryJSONRoundTrip(t *testing.T) {
	entry := Entry{
		UID:    EntryUIDForSource("42"),
		Locale: "en-us",
		Fields: map[string]any{"title": "Hello"},
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.UID != "entries_title_42" || decoded.Locale != "en-us" {
		t.Fatalf("unexpected identity: %+v", decoded)
	}
	if decoded.Fields["title"] != "Hello" {
		t.Fatalf("unexpected fields: %+v", decoded.Fields)
	}
	if _, leaked := decoded.Fields["uid"]; leaked {
		t.Fatalf("uid should not remain in field map")
	}
}

func TestSlugAndTermUID(t *testing.T) {
	if got := Slug("News & Topics"); got != "news_topics" {
		t.Fatalf("unexpected slug: %s", got)
	}
	if got := TermUID("news_topics", "17"); got != "news_topics_17" {
		t.Fatalf("unexpected term uid: %s", got)
	}
	if got := TermRefKey("tags", "5"); got != "tags_5" {
		t.Fatalf("unexpected term ref key: %s", got)
	}
}
