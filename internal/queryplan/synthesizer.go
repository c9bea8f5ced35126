// Package queryplan synthesizes the query sets used to read wide content
// rows out of a source store whose engine cannot join every per-field table
// at once. A plan groups field tables under the join-width limit and is
// persisted so later passes reuse it instead of re-deriving it.
package queryplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/batch"
	"github.com/rpattn/stackshift/pkg/logger"
)

// Strategy selects how field tables are combined into queries.
type Strategy string

const (
	// StrategySequential issues one query per field table and merges rows
	// in memory.
	StrategySequential Strategy = "sequential"
	// StrategyBatched joins field tables in chunks below the join-width
	// limit.
	StrategyBatched Strategy = "batched"
	// StrategyUnion reads every field table as a unioned value stream and
	// pivots it back into wide rows.
	StrategyUnion Strategy = "union"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyBatched, StrategyUnion:
		return true
	}
	return false
}

// ErrNoResolvableFields marks a content type none of whose field tables
// exist. The content type is skipped with a diagnostic, never silently
// emptied.
var ErrNoResolvableFields = errors.New("no field tables resolve for content type")

// Plan is the persisted query set for one content type.
type Plan struct {
	ContentType    string     `json:"content_type"`
	Strategy       Strategy   `json:"strategy"`
	JoinWidthLimit int        `json:"join_width_limit"`
	Groups         [][]string `json:"groups"`
	Skipped        []string   `json:"skipped,omitempty"`
	RowCount       int        `json:"row_count"`
}

// Tables returns every field table of the plan in group order.
func (p Plan) Tables() []string {
	var tables []string
	for _, group := range p.Groups {
		tables = append(tables, group...)
	}
	return tables
}

// Synthesizer builds and executes query plans against a source store.
type Synthesizer struct {
	store source.Store
	log   *logger.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(store source.Store, log *logger.Logger) *Synthesizer {
	return &Synthesizer{store: store, log: log}
}

// Synthesize produces the query plan for one content type. Fields whose
// tables are missing or inaccessible are skipped with a warning; when no
// field resolves the plan is returned alongside ErrNoResolvableFields so
// the caller can skip the content type with an explicit diagnostic.
func (s *Synthesizer) Synthesize(ctx context.Context, mapping domain.ContentTypeMapping, strategy Strategy, joinWidthLimit int) (Plan, error) {
	if !strategy.Valid() {
		return Plan{}, fmt.Errorf("unknown synthesis strategy %q", strategy)
	}
	if joinWidthLimit <= 0 {
		return Plan{}, fmt.Errorf("join width limit must be positive, got %d", joinWidthLimit)
	}

	plan := Plan{
		ContentType:    mapping.SourceType,
		Strategy:       strategy,
		JoinWidthLimit: joinWidthLimit,
	}

	var tables []string
	for _, field := range fieldTableInventory(mapping.ActiveFields()) {
		exists, err := s.store.HasFieldTable(ctx, field)
		if err != nil || !exists {
			if err != nil {
				s.log.Warnf("content type %s: field table %s is not accessible, skipping field: %v", mapping.SourceType, field, err)
			} else {
				s.log.Warnf("content type %s: field table %s does not exist, skipping field", mapping.SourceType, field)
			}
			plan.Skipped = append(plan.Skipped, field)
			continue
		}
		tables = append(tables, field)
	}

	if len(tables) == 0 {
		return plan, fmt.Errorf("content type %s: %w", mapping.SourceType, ErrNoResolvableFields)
	}

	switch strategy {
	case StrategySequential:
		plan.Groups = batch.Split(tables, 1)
	case StrategyBatched:
		plan.Groups = batch.Split(tables, joinWidthLimit)
	case StrategyUnion:
		plan.Groups = [][]string{tables}
	}

	count, err := s.store.CountRows(ctx, mapping.SourceType)
	if err != nil {
		return plan, fmt.Errorf("count rows for %s: %w", mapping.SourceType, err)
	}
	plan.RowCount = count

	return plan, nil
}

// Execute runs the plan's queries and merges the results into one wide row
// set keyed by entity id. A field table that fails mid-execution is skipped
// with a warning rather than failing the content type.
func (s *Synthesizer) Execute(ctx context.Context, plan Plan) (map[string]source.Row, error) {
	merged := make(map[string]source.Row)

	switch plan.Strategy {
	case StrategySequential:
		for _, group := range plan.Groups {
			for _, table := range group {
				rows, err := s.store.FieldRows(ctx, plan.ContentType, table)
				if err != nil {
					s.log.Warnf("content type %s: reading %s failed, skipping field: %v", plan.ContentType, table, err)
					continue
				}
				mergeRowSet(merged, rows)
			}
		}
	case StrategyBatched:
		for _, group := range plan.Groups {
			rows, err := s.store.JoinRows(ctx, plan.ContentType, group)
			if err != nil {
				// Retry the chunk one table at a time so a single bad
				// table does not take down its whole group.
				s.log.Warnf("content type %s: joined read of %d tables failed, retrying sequentially: %v", plan.ContentType, len(group), err)
				for _, table := range group {
					tableRows, tableErr := s.store.FieldRows(ctx, plan.ContentType, table)
					if tableErr != nil {
						s.log.Warnf("content type %s: reading %s failed, skipping field: %v", plan.ContentType, table, tableErr)
						continue
					}
					mergeRowSet(merged, tableRows)
				}
				continue
			}
			mergeRowSet(merged, rows)
		}
	case StrategyUnion:
		triples, err := s.store.UnionRows(ctx, plan.ContentType, plan.Tables())
		if err != nil {
			// Retry one table at a time so a single bad table does not
			// take down the whole content type.
			s.log.Warnf("content type %s: union read of %d tables failed, retrying sequentially: %v", plan.ContentType, len(plan.Tables()), err)
			for _, table := range plan.Tables() {
				tableRows, tableErr := s.store.FieldRows(ctx, plan.ContentType, table)
				if tableErr != nil {
					s.log.Warnf("content type %s: reading %s failed, skipping field: %v", plan.ContentType, table, tableErr)
					continue
				}
				mergeRowSet(merged, tableRows)
			}
			break
		}
		for _, triple := range triples {
			row, ok := merged[triple.RowKey]
			if !ok {
				row = source.Row{}
				merged[triple.RowKey] = row
			}
			source.MergeValue(row, triple.Column, triple.Value)
		}
	default:
		return nil, fmt.Errorf("unknown synthesis strategy %q", plan.Strategy)
	}

	return merged, nil
}

func mergeRowSet(into map[string]source.Row, rows map[string]source.Row) {
	for id, row := range rows {
		target, ok := into[id]
		if !ok {
			target = source.Row{}
			into[id] = target
		}
		for column, value := range row {
			source.MergeValue(target, column, value)
		}
	}
}

// fieldTableInventory maps the active field mappings (including nested
// children of composite fields) onto their per-field source tables. Base
// columns that live on the node table itself carry no field table.
func fieldTableInventory(fields []domain.FieldMapping) []string {
	seen := make(map[string]struct{})
	var tables []string

	var walk func(fields []domain.FieldMapping)
	walk = func(fields []domain.FieldMapping) {
		for _, field := range fields {
			if field.Deleted {
				continue
			}
			if field.Type.Composite() {
				walk(field.Children)
				continue
			}
			if isBaseColumn(field.SourceField) {
				continue
			}
			table := source.FieldTableName(field.SourceField)
			if _, dup := seen[table]; dup {
				continue
			}
			seen[table] = struct{}{}
			tables = append(tables, table)
		}
	}
	walk(fields)
	return tables
}

var baseColumns = map[string]struct{}{
	"id":       {},
	"title":    {},
	"langcode": {},
	"created":  {},
	"status":   {},
}

func isBaseColumn(sourceField string) bool {
	_, ok := baseColumns[sourceField]
	return ok
}
