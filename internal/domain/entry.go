package domain

import "encoding/json"

// Entry is one transformed destination entry in one locale. Field values
// are keyed by destination field UID; UID and Locale are computed once per
// entry and merged into the JSON object on marshal.
type Entry struct {
	UID    string
	Locale string
	Fields map[string]any
}

// MarshalJSON flattens the entry into a single object with uid and locale
// alongside the field values.
func (e Entry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+2)
	for key, value := range e.Fields {
		flat[key] = value
	}
	flat["uid"] = e.UID
	flat["locale"] = e.Locale
	return json.Marshal(flat)
}

// UnmarshalJSON splits uid and locale back out of the flat object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if uid, ok := flat["uid"].(string); ok {
		e.UID = uid
	}
	if locale, ok := flat["locale"].(string); ok {
		e.Locale = locale
	}
	delete(flat, "uid")
	delete(flat, "locale")
	e.Fields = flat
	return nil
}

// EntryReference is the shape emitted for one resolved (or forward)
// reference inside a reference field.
type EntryReference struct {
	UID            string `json:"uid"`
	ContentTypeUID string `json:"_content_type_uid"`
}

// OrgLimits carries the per-organization numeric limits used for advisory
// validation. They are never enforced by the transformer itself.
type OrgLimits struct {
	MaxReferenceContentTypes int `json:"max_reference_content_types"`
	MaxRichTextEmbeds        int `json:"max_rich_text_embeds"`
}
