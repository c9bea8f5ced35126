package domain

import "fmt"

// ReferenceIndexEntry links one source entity to the destination entry that
// will be created for it. Entries are written during a fresh indexing pass
// and are immutable while entry transformation runs.
type ReferenceIndexEntry struct {
	SourceID       string `json:"source_id"`
	EntryUID       string `json:"uid"`
	ContentTypeUID string `json:"_content_type_uid"`
}

// EntryUIDForSource derives the destination entry UID for a source entity
// id. The scheme is stable across re-runs so ids already referenced by a
// previous migration never change.
func EntryUIDForSource(sourceID string) string {
	return "entries_title_" + sourceID
}

// TermRefKey derives the flat lookup key for a taxonomy term reference.
func TermRefKey(vocabulary, termID string) string {
	return fmt.Sprintf("%s_%s", vocabulary, termID)
}

// ReferenceIndex is the flat map from source entity id to destination
// reference, built fully before any reference field is resolved.
type ReferenceIndex struct {
	entries map[string]ReferenceIndexEntry
	terms   map[string]ReferenceIndexEntry
}

// NewReferenceIndex returns an empty index.
func NewReferenceIndex() *ReferenceIndex {
	return &ReferenceIndex{
		entries: make(map[string]ReferenceIndexEntry),
		terms:   make(map[string]ReferenceIndexEntry),
	}
}

// AddEntry records the destination reference for a source entity id.
// Last writer wins; the indexing pass is the only writer.
func (r *ReferenceIndex) AddEntry(entry ReferenceIndexEntry) {
	r.entries[entry.SourceID] = entry
}

// AddTerm records a taxonomy term reference keyed by vocabulary and term id.
func (r *ReferenceIndex) AddTerm(vocabulary, termID string, entry ReferenceIndexEntry) {
	r.terms[TermRefKey(vocabulary, termID)] = entry
}

// Resolve returns the destination reference for a source entity id.
func (r *ReferenceIndex) Resolve(sourceID string) (ReferenceIndexEntry, bool) {
	entry, ok := r.entries[sourceID]
	return entry, ok
}

// ResolveTerm returns the reference for a vocabulary-scoped term id.
func (r *ReferenceIndex) ResolveTerm(vocabulary, termID string) (ReferenceIndexEntry, bool) {
	entry, ok := r.terms[TermRefKey(vocabulary, termID)]
	return entry, ok
}

// Entries returns a copy of the entry map keyed by source id.
func (r *ReferenceIndex) Entries() map[string]ReferenceIndexEntry {
	out := make(map[string]ReferenceIndexEntry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Len reports how many entry references have been indexed.
func (r *ReferenceIndex) Len() int {
	return len(r.entries)
}

// Merge folds previously persisted entries into the index without
// overwriting ids written during the current pass.
func (r *ReferenceIndex) Merge(persisted map[string]ReferenceIndexEntry) {
	for id, entry := range persisted {
		if _, exists := r.entries[id]; !exists {
			r.entries[id] = entry
		}
	}
}
