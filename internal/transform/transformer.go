// Package transform turns wide source rows into destination entries by
// applying curated field mappings. The core is a type-dispatch switch on
// the declared destination field type, with recursion for composite types.
package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

// Deps bundles the resolved lookup state entry transformation needs: the
// completed reference index, the run's locale set, the migrated asset map
// and the advisory organization limits.
type Deps struct {
	Index   *domain.ReferenceIndex
	Locales domain.LocaleSet
	Assets  *domain.AssetMap
	Limits  domain.OrgLimits
}

// Transformer applies one content type's field mappings to source rows.
type Transformer struct {
	deps Deps
	log  *logger.Logger

	advisories atomic.Int64
}

// New creates a transformer.
func New(deps Deps, log *logger.Logger) *Transformer {
	if deps.Index == nil {
		deps.Index = domain.NewReferenceIndex()
	}
	if deps.Assets == nil {
		deps.Assets = domain.NewAssetMap()
	}
	return &Transformer{deps: deps, log: log}
}

// valueSuffixes are the column suffixes a logical source field may carry.
// A mapping reading a suffixed column is suppressed whenever the row also
// holds the non-suffixed sibling; the non-suffixed value always wins.
var valueSuffixes = []string{"_value", "_target_id", "_tid", "_fid", "_uri", "_url", "_status"}

// TransformEntry produces the destination entry for one source row. Entry
// identity and locale are computed once and merged with the field results.
func (t *Transformer) TransformEntry(row source.Row, mapping domain.ContentTypeMapping) domain.Entry {
	entry := domain.Entry{
		UID:    domain.EntryUIDForSource(row["id"]),
		Locale: t.entryLocale(row),
		Fields: make(map[string]any),
	}

	for _, field := range mapping.ActiveFields() {
		if t.suppressed(row, field) {
			continue
		}
		raw, ok := t.rawValue(row, field.SourceField)
		if !ok {
			continue
		}
		entry.Fields[field.UID] = t.transformField(field, raw)
	}

	// Every entry carries a title and a url even when the mapping does not
	// produce them; downstream import rejects entries without either.
	if _, ok := entry.Fields["title"]; !ok {
		title := strings.TrimSpace(row["title"])
		if title == "" {
			title = entry.UID
		}
		entry.Fields["title"] = title
	}
	if _, ok := entry.Fields["url"]; !ok {
		entry.Fields["url"] = "/" + mapping.UID + "/" + row["id"]
	}
	return entry
}

// entryLocale resolves the row's language through the locale set built at
// the start of the run, so entries land under the exact codes the locale
// files record.
func (t *Transformer) entryLocale(row source.Row) string {
	code := strings.ToLower(row["langcode"])
	if code == "" {
		return t.deps.Locales.Master.Code
	}
	if entry, ok := t.deps.Locales.BySource(code); ok {
		return entry.Code
	}
	return code
}

// AdvisoryWarnings reports how many advisory limit breaches transformation
// logged so far.
func (t *Transformer) AdvisoryWarnings() int {
	return int(t.advisories.Load())
}

// suppressed reports whether the field reads a suffixed column whose
// non-suffixed sibling is also present in the row.
func (t *Transformer) suppressed(row source.Row, field domain.FieldMapping) bool {
	for _, suffix := range valueSuffixes {
		base, found := strings.CutSuffix(field.SourceField, suffix)
		if !found || base == "" {
			continue
		}
		if _, ok := row[base]; ok {
			return true
		}
	}
	return false
}

// rawValue finds the row column backing a logical source field. The exact
// column wins; otherwise the known suffixed variants are tried in order.
func (t *Transformer) rawValue(row source.Row, sourceField string) (string, bool) {
	if value, ok := row[sourceField]; ok {
		return value, true
	}
	for _, suffix := range valueSuffixes {
		if value, ok := row[sourceField+suffix]; ok {
			return value, true
		}
	}
	return "", false
}

func (t *Transformer) transformField(field domain.FieldMapping, raw string) any {
	switch field.Type {
	case domain.FieldTypeText, domain.FieldTypeMultiLineText:
		return raw
	case domain.FieldTypeNumber:
		return t.coerceNumber(field, raw)
	case domain.FieldTypeBoolean:
		return coerceBoolean(raw)
	case domain.FieldTypeDate:
		return t.coerceDate(field, raw)
	case domain.FieldTypeJSONRichText:
		doc := FromHTML(raw, t.deps.Assets, t.log)
		if limit := t.deps.Limits.MaxRichTextEmbeds; limit > 0 {
			if embeds := countEmbeddedAssets(doc); embeds > limit {
				t.log.Warnf("field %s embeds %d assets, organization limit is %d", field.UID, embeds, limit)
				t.advisories.Add(1)
			}
		}
		return doc
	case domain.FieldTypeFile:
		return t.resolveAsset(field, raw)
	case domain.FieldTypeLink:
		return map[string]any{"title": field.DisplayName, "href": raw}
	case domain.FieldTypeReference:
		return t.resolveReferences(field, raw)
	case domain.FieldTypeTaxonomy:
		return t.resolveTaxonomy(field, raw)
	case domain.FieldTypeDropdown:
		return t.resolveDropdown(field, raw)
	case domain.FieldTypeGroup, domain.FieldTypeGlobalField:
		return t.transformGroup(field, raw)
	case domain.FieldTypeModularBlocks:
		return t.transformBlocks(field, raw)
	default:
		t.log.Warnf("field %s declares unrecognized type %q, passing raw value through", field.UID, field.Type)
		return raw
	}
}

func (t *Transformer) coerceNumber(field domain.FieldMapping, raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		t.log.Warnf("field %s: %q is not numeric, emitting null", field.UID, raw)
		return nil
	}
	return value
}

func coerceBoolean(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerceDate accepts a Unix timestamp or an ISO-like string and always
// emits ISO-8601 in UTC.
func (t *Transformer) coerceDate(field domain.FieldMapping, raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if seconds, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if len(trimmed) > 10 {
			// millisecond precision timestamp
			return time.UnixMilli(seconds).UTC().Format(time.RFC3339)
		}
		return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC().Format(time.RFC3339)
		}
	}
	t.log.Warnf("field %s: %q is not a recognized date, passing through", field.UID, raw)
	return raw
}

func (t *Transformer) resolveAsset(field domain.FieldMapping, raw string) any {
	candidates := []string{raw, domain.AssetUIDForSource(raw)}
	for _, uid := range candidates {
		if record, ok := t.deps.Assets.ByUID(uid); ok {
			return record.UID
		}
	}
	if record, ok := t.deps.Assets.ByPath(domain.NormalizeAssetPath(raw)); ok {
		return record.UID
	}
	t.log.Warnf("field %s: asset %q not found in migrated set, emitting null", field.UID, raw)
	return nil
}

// resolveReferences emits one {uid, content type} pair per |-delimited id.
// Unresolved ids are still emitted with their derived UID; forward
// references are resolved by the destination platform, not here.
func (t *Transformer) resolveReferences(field domain.FieldMapping, raw string) []domain.EntryReference {
	fallbackType := ""
	if len(field.Settings.ReferenceTo) > 0 {
		fallbackType = field.Settings.ReferenceTo[0]
	}

	refs := make([]domain.EntryReference, 0)
	for _, id := range splitIDs(raw) {
		if resolved, ok := t.deps.Index.Resolve(id); ok {
			refs = append(refs, domain.EntryReference{
				UID:            resolved.EntryUID,
				ContentTypeUID: resolved.ContentTypeUID,
			})
			continue
		}
		refs = append(refs, domain.EntryReference{
			UID:            domain.EntryUIDForSource(id),
			ContentTypeUID: fallbackType,
		})
	}
	return refs
}

// resolveTaxonomy passes already shaped lists through, wraps a single
// object into a one-element list and resolves raw term id lists through
// the reference index.
func (t *Transformer) resolveTaxonomy(field domain.FieldMapping, raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var shaped []any
		if err := json.Unmarshal([]byte(trimmed), &shaped); err == nil {
			return shaped
		}
	}
	if strings.HasPrefix(trimmed, "{") {
		var shaped map[string]any
		if err := json.Unmarshal([]byte(trimmed), &shaped); err == nil {
			return []any{shaped}
		}
	}

	terms := make([]any, 0)
	for _, id := range splitIDs(raw) {
		term := t.resolveTermID(field, id)
		if term != nil {
			terms = append(terms, term)
		}
	}
	return terms
}

func (t *Transformer) resolveTermID(field domain.FieldMapping, id string) any {
	for _, vocab := range field.Settings.TaxonomyRefs {
		if resolved, ok := t.deps.Index.ResolveTerm(vocab, id); ok {
			return map[string]any{"taxonomy_uid": vocab, "term_uid": resolved.EntryUID}
		}
	}
	if len(field.Settings.TaxonomyRefs) > 0 {
		vocab := field.Settings.TaxonomyRefs[0]
		return map[string]any{"taxonomy_uid": vocab, "term_uid": domain.TermUID(vocab, id)}
	}
	t.log.Warnf("field %s: term %s has no configured taxonomy, dropping", field.UID, id)
	return nil
}

func (t *Transformer) resolveDropdown(field domain.FieldMapping, raw string) any {
	for _, option := range field.Settings.Options {
		if option.Key == raw || option.Value == raw {
			return option.Value
		}
	}
	if field.Settings.DefaultValue != "" {
		return field.Settings.DefaultValue
	}
	return nil
}

// transformGroup recurses into the field's nested mappings over a JSON
// object payload, keyed by child UID in the output.
func (t *Transformer) transformGroup(field domain.FieldMapping, raw string) any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.log.Warnf("field %s: payload is not a JSON object, passing raw value through", field.UID)
		return raw
	}
	return t.transformObject(field.Children, payload)
}

func (t *Transformer) transformObject(children []domain.FieldMapping, payload map[string]any) map[string]any {
	out := make(map[string]any, len(children))
	for _, child := range children {
		if child.Deleted {
			continue
		}
		value, ok := payload[child.SourceField]
		if !ok {
			value, ok = payload[child.UID]
		}
		if !ok {
			continue
		}
		out[child.UID] = t.transformField(child, asString(value))
	}
	return out
}

// blockSelectorKey names the payload key that selects which block schema
// applies to one element of a modular block container.
const blockSelectorKey = "type"

// transformBlocks branches each array element on its block selector so
// only the matching child schema is applied to it.
func (t *Transformer) transformBlocks(field domain.FieldMapping, raw string) any {
	var payload []any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.log.Warnf("field %s: payload is not a JSON array, passing raw value through", field.UID)
		return raw
	}

	blocks := make([]any, 0, len(payload))
	for _, element := range payload {
		object, ok := element.(map[string]any)
		if !ok {
			t.log.Warnf("field %s: block element is not an object, skipping", field.UID)
			continue
		}
		selector := asString(object[blockSelectorKey])
		block := field.ChildByUID(selector)
		if block == nil {
			t.log.Warnf("field %s: no block schema for selector %q, skipping element", field.UID, selector)
			continue
		}
		blocks = append(blocks, map[string]any{
			block.UID: t.transformObject(block.Children, object),
		})
	}
	return blocks
}

func splitIDs(raw string) []string {
	parts := strings.Split(raw, "|")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
