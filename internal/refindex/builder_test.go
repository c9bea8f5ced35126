package refindex

import (
	"context"
	"fmt"
	"testing"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

func TestBuildIndexesEveryRowAcrossPages(t *testing.T) {
	store := source.NewMemStore()
	store.Types = []string{"article"}
	for i := 1; i <= 1203; i++ {
		store.Base["article"] = append(store.Base["article"], source.Row{
			"id": fmt.Sprintf("%d", i), "title": fmt.Sprintf("entry %d", i),
		})
	}

	builder := NewBuilder(store, logger.New())
	index, err := builder.Build(context.Background(), []domain.ContentTypeMapping{
		{SourceType: "article", UID: "article", Title: "Article"},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if index.Len() != 1203 {
		t.Fatalf("expected 1203 indexed entries, got %d", index.Len())
	}

	entry, ok := index.Resolve("42")
	if !ok {
		t.Fatal("expected source id 42 to resolve")
	}
	if entry.EntryUID != "entries_title_42" {
		t.Errorf("entry UID = %q, want entries_title_42", entry.EntryUID)
	}
	if entry.ContentTypeUID != "article" {
		t.Errorf("content type UID = %q, want article", entry.ContentTypeUID)
	}
}

func TestBuildIndexesTermReferences(t *testing.T) {
	store := source.NewMemStore()
	store.TermList = []source.Term{
		{ID: "7", Vocabulary: "Tags", VocabularyName: "Tags", Name: "go"},
		{ID: "8", Vocabulary: "Tags", VocabularyName: "Tags", Name: "sql"},
	}

	index, err := NewBuilder(store, logger.New()).Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	ref, ok := index.ResolveTerm("tags", "7")
	if !ok {
		t.Fatal("expected term tags/7 to resolve")
	}
	if ref.EntryUID != "tags_7" {
		t.Errorf("term UID = %q, want tags_7", ref.EntryUID)
	}
}

func TestPersisterKeepsPriorRunIDs(t *testing.T) {
	persister := NewPersister(t.TempDir())

	first := domain.NewReferenceIndex()
	first.AddEntry(domain.ReferenceIndexEntry{SourceID: "1", EntryUID: "entries_title_1", ContentTypeUID: "article"})
	first.AddEntry(domain.ReferenceIndexEntry{SourceID: "2", EntryUID: "entries_title_2", ContentTypeUID: "article"})
	if err := persister.Save(first); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// A second run indexes id 2 under a different content type and a new
	// id 3. Id 1 is absent from the run but must survive.
	second := domain.NewReferenceIndex()
	second.AddEntry(domain.ReferenceIndexEntry{SourceID: "2", EntryUID: "entries_title_2", ContentTypeUID: "page"})
	second.AddEntry(domain.ReferenceIndexEntry{SourceID: "3", EntryUID: "entries_title_3", ContentTypeUID: "article"})
	if err := persister.Save(second); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := persister.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 persisted references, got %d", len(loaded))
	}
	if loaded["1"].EntryUID != "entries_title_1" {
		t.Errorf("id 1 lost across runs: %+v", loaded["1"])
	}
	if loaded["2"].ContentTypeUID != "page" {
		t.Errorf("current pass should win for id 2, got %+v", loaded["2"])
	}
}
