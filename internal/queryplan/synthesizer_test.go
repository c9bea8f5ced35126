package queryplan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

func wideFixture(fieldCount int) (*source.MemStore, domain.ContentTypeMapping) {
	store := source.NewMemStore()
	store.Types = []string{"article"}
	mapping := domain.ContentTypeMapping{SourceType: "article", UID: "article", Title: "Article"}

	for i := 0; i < fieldCount; i++ {
		name := fmt.Sprintf("field_%03d", i)
		store.Tables[source.FieldTableName(name)] = map[string]source.Row{}
		mapping.Fields = append(mapping.Fields, domain.FieldMapping{
			SourceField: name,
			UID:         name,
			Path:        name,
			Type:        domain.FieldTypeText,
		})
	}
	for id := 1; id <= 3; id++ {
		key := fmt.Sprintf("%d", id)
		store.Base["article"] = append(store.Base["article"], source.Row{"id": key, "title": "entry " + key})
		for i := 0; i < fieldCount; i++ {
			name := fmt.Sprintf("field_%03d", i)
			store.Tables[source.FieldTableName(name)][key] = source.Row{
				name + "_value": fmt.Sprintf("v%d-%d", i, id),
			}
		}
	}
	return store, mapping
}

func TestSynthesizeGroupsUnderJoinWidthLimit(t *testing.T) {
	store, mapping := wideFixture(80)
	syn := NewSynthesizer(store, logger.New())

	plan, err := syn.Synthesize(context.Background(), mapping, StrategyBatched, 50)
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if len(plan.Groups) != 2 {
		t.Fatalf("expected 2 groups for 80 tables at limit 50, got %d", len(plan.Groups))
	}
	for i, group := range plan.Groups {
		if len(group) > 50 {
			t.Errorf("group %d exceeds join width limit: %d tables", i, len(group))
		}
	}
	if len(plan.Tables()) != 80 {
		t.Errorf("expected 80 tables across groups, got %d", len(plan.Tables()))
	}
	if plan.RowCount != 3 {
		t.Errorf("expected row count 3, got %d", plan.RowCount)
	}
}

func TestStrategiesProduceIdenticalRows(t *testing.T) {
	store, mapping := wideFixture(12)
	syn := NewSynthesizer(store, logger.New())
	ctx := context.Background()

	results := make(map[Strategy]map[string]source.Row)
	for _, strategy := range []Strategy{StrategySequential, StrategyBatched, StrategyUnion} {
		plan, err := syn.Synthesize(ctx, mapping, strategy, 5)
		if err != nil {
			t.Fatalf("%s: Synthesize returned error: %v", strategy, err)
		}
		rows, err := syn.Execute(ctx, plan)
		if err != nil {
			t.Fatalf("%s: Execute returned error: %v", strategy, err)
		}
		results[strategy] = rows
	}

	if !reflect.DeepEqual(results[StrategySequential], results[StrategyBatched]) {
		t.Errorf("sequential and batched rows differ")
	}
	if !reflect.DeepEqual(results[StrategySequential], results[StrategyUnion]) {
		t.Errorf("sequential and union rows differ")
	}
	if got := len(results[StrategySequential]["1"]); got != 12 {
		t.Errorf("expected 12 columns on row 1, got %d", got)
	}
}

func TestSynthesizeSkipsMissingFieldTables(t *testing.T) {
	store, mapping := wideFixture(4)
	delete(store.Tables, source.FieldTableName("field_002"))
	syn := NewSynthesizer(store, logger.New())

	plan, err := syn.Synthesize(context.Background(), mapping, StrategySequential, 10)
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if len(plan.Tables()) != 3 {
		t.Errorf("expected 3 resolvable tables, got %d", len(plan.Tables()))
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0] != source.FieldTableName("field_002") {
		t.Errorf("expected skipped table field_data_field_002, got %v", plan.Skipped)
	}
}

func TestSynthesizeFailsWhenNoFieldResolves(t *testing.T) {
	store, mapping := wideFixture(2)
	store.Tables = map[string]map[string]source.Row{}
	syn := NewSynthesizer(store, logger.New())

	_, err := syn.Synthesize(context.Background(), mapping, StrategySequential, 10)
	if !errors.Is(err, ErrNoResolvableFields) {
		t.Fatalf("expected ErrNoResolvableFields, got %v", err)
	}
}

func TestExecuteBatchedFallsBackPerTable(t *testing.T) {
	store, mapping := wideFixture(4)
	syn := NewSynthesizer(store, logger.New())
	ctx := context.Background()

	plan, err := syn.Synthesize(ctx, mapping, StrategyBatched, 4)
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}

	// The table disappears between planning and execution. The joined read
	// fails and the group is retried one table at a time.
	store.FailTables[source.FieldTableName("field_001")] = true

	rows, err := syn.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got := len(rows["1"]); got != 3 {
		t.Errorf("expected 3 columns after fallback, got %d", got)
	}
}

func TestExecuteUnionFallsBackPerTable(t *testing.T) {
	store, mapping := wideFixture(3)
	syn := NewSynthesizer(store, logger.New())
	ctx := context.Background()

	plan, err := syn.Synthesize(ctx, mapping, StrategyUnion, 10)
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}

	// The table disappears between planning and execution. The pivoted
	// read fails and the plan is retried one table at a time.
	store.FailTables[source.FieldTableName("field_001")] = true

	rows, err := syn.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got := len(rows["1"]); got != 2 {
		t.Errorf("expected 2 columns after fallback, got %d", got)
	}
}

func TestPlanStoreRoundTrip(t *testing.T) {
	ps := NewPlanStore(t.TempDir())

	if _, ok, err := ps.Load("article"); err != nil || ok {
		t.Fatalf("expected no stored plan, got ok=%v err=%v", ok, err)
	}

	plan := Plan{
		ContentType:    "article",
		Strategy:       StrategyBatched,
		JoinWidthLimit: 50,
		Groups:         [][]string{{"field_data_field_body"}},
		RowCount:       7,
	}
	if err := ps.Save(plan); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, ok, err := ps.Load("article")
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(loaded, plan) {
		t.Errorf("loaded plan differs from saved plan:\n got %+v\nwant %+v", loaded, plan)
	}
}

func TestPlanStoreSanitizesContentTypeName(t *testing.T) {
	dir := t.TempDir()
	ps := NewPlanStore(dir)

	plan := Plan{
		ContentType:    "../escape",
		Strategy:       StrategySequential,
		JoinWidthLimit: 50,
		Groups:         [][]string{{"field_data_field_body"}},
	}
	if err := ps.Save(plan); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "queries", "___escape.json")); err != nil {
		t.Errorf("expected plan inside the queries directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.json")); !os.IsNotExist(err) {
		t.Error("plan file escaped the queries directory")
	}

	loaded, ok, err := ps.Load("../escape")
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	if loaded.ContentType != "../escape" {
		t.Errorf("content type = %q, want ../escape", loaded.ContentType)
	}
}
