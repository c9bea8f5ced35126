package source

import (
	"context"
	"fmt"
	"sort"
)

// MemStore is an in-memory Store used by tests and dry runs. The three
// field-reading strategies are all derived from the same Tables data, so
// strategy-equivalence holds by construction on the data side while the
// synthesizer's merging logic is still exercised per strategy.
type MemStore struct {
	Types      []string
	Base       map[string][]Row            // content type -> base rows
	Tables     map[string]map[string]Row   // field table -> entity id -> columns
	FailTables map[string]bool             // tables reported missing
	LocaleList []Locale
	TermList   []Term
	Hierarchy  map[string]string
	AssetList  []Asset
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		Base:       make(map[string][]Row),
		Tables:     make(map[string]map[string]Row),
		FailTables: make(map[string]bool),
		Hierarchy:  make(map[string]string),
	}
}

func (m *MemStore) ContentTypes(ctx context.Context) ([]string, error) {
	return append([]string(nil), m.Types...), nil
}

func (m *MemStore) CountRows(ctx context.Context, contentType string) (int, error) {
	return len(m.Base[contentType]), nil
}

func (m *MemStore) BaseRows(ctx context.Context, contentType string, limit, offset int) ([]Row, error) {
	rows := m.Base[contentType]
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	page := make([]Row, 0, end-offset)
	for _, row := range rows[offset:end] {
		page = append(page, cloneRow(row))
	}
	return page, nil
}

func (m *MemStore) HasFieldTable(ctx context.Context, table string) (bool, error) {
	if m.FailTables[table] {
		return false, nil
	}
	_, ok := m.Tables[table]
	return ok, nil
}

func (m *MemStore) FieldRows(ctx context.Context, contentType, table string) (map[string]Row, error) {
	if m.FailTables[table] {
		return nil, fmt.Errorf("table %s is not accessible", table)
	}
	data, ok := m.Tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	result := make(map[string]Row, len(data))
	for id, row := range data {
		result[id] = cloneRow(row)
	}
	return result, nil
}

func (m *MemStore) JoinRows(ctx context.Context, contentType string, tables []string) (map[string]Row, error) {
	result := make(map[string]Row)
	for _, table := range tables {
		data, err := m.FieldRows(ctx, contentType, table)
		if err != nil {
			return nil, err
		}
		for id, row := range data {
			merged, ok := result[id]
			if !ok {
				merged = Row{}
				result[id] = merged
			}
			for column, value := range row {
				MergeValue(merged, column, value)
			}
		}
	}
	return result, nil
}

func (m *MemStore) UnionRows(ctx context.Context, contentType string, tables []string) ([]FieldValue, error) {
	var triples []FieldValue
	for _, table := range tables {
		data, err := m.FieldRows(ctx, contentType, table)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(data))
		for id := range data {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			row := data[id]
			columns := make([]string, 0, len(row))
			for column := range row {
				columns = append(columns, column)
			}
			sort.Strings(columns)
			for _, column := range columns {
				triples = append(triples, FieldValue{RowKey: id, Column: column, Value: row[column]})
			}
		}
	}
	return triples, nil
}

func (m *MemStore) Locales(ctx context.Context) ([]Locale, error) {
	return append([]Locale(nil), m.LocaleList...), nil
}

func (m *MemStore) Terms(ctx context.Context) ([]Term, error) {
	return append([]Term(nil), m.TermList...), nil
}

func (m *MemStore) TermHierarchy(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.Hierarchy))
	for k, v := range m.Hierarchy {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) Assets(ctx context.Context, ids []string) ([]Asset, error) {
	if ids == nil {
		return append([]Asset(nil), m.AssetList...), nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var filtered []Asset
	for _, asset := range m.AssetList {
		if _, ok := wanted[asset.ID]; ok {
			filtered = append(filtered, asset)
		}
	}
	return filtered, nil
}

func cloneRow(row Row) Row {
	clone := make(Row, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}

var _ Store = (*MemStore)(nil)
