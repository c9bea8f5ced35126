// Package refindex builds the reference index that maps every source
// entity onto its destination entry UID. The index is completed for all
// content types before any reference field is resolved, so forward
// references between content types always land.
package refindex

import (
	"context"
	"fmt"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

const defaultPageSize = 500

// Builder walks the paged row sets of every content type and records one
// reference per row.
type Builder struct {
	store    source.Store
	log      *logger.Logger
	pageSize int
}

// NewBuilder creates a builder reading from store.
func NewBuilder(store source.Store, log *logger.Logger) *Builder {
	return &Builder{store: store, log: log, pageSize: defaultPageSize}
}

// Build indexes every content type in mappings and every taxonomy term.
// The derived entry UIDs are stable across re-runs.
func (b *Builder) Build(ctx context.Context, mappings []domain.ContentTypeMapping) (*domain.ReferenceIndex, error) {
	index := domain.NewReferenceIndex()

	for _, mapping := range mappings {
		count, err := b.indexContentType(ctx, index, mapping)
		if err != nil {
			return nil, fmt.Errorf("index content type %s: %w", mapping.SourceType, err)
		}
		b.log.Infof("indexed %d entries for %s", count, mapping.UID)
	}

	if err := b.indexTerms(ctx, index); err != nil {
		return nil, err
	}
	return index, nil
}

func (b *Builder) indexContentType(ctx context.Context, index *domain.ReferenceIndex, mapping domain.ContentTypeMapping) (int, error) {
	count := 0
	for offset := 0; ; offset += b.pageSize {
		rows, err := b.store.BaseRows(ctx, mapping.SourceType, b.pageSize, offset)
		if err != nil {
			return count, err
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			id := row["id"]
			if id == "" {
				b.log.Warnf("content type %s: row without id skipped during indexing", mapping.SourceType)
				continue
			}
			index.AddEntry(domain.ReferenceIndexEntry{
				SourceID:       id,
				EntryUID:       domain.EntryUIDForSource(id),
				ContentTypeUID: mapping.UID,
			})
			count++
		}
		if len(rows) < b.pageSize {
			break
		}
	}
	return count, nil
}

func (b *Builder) indexTerms(ctx context.Context, index *domain.ReferenceIndex) error {
	terms, err := b.store.Terms(ctx)
	if err != nil {
		return fmt.Errorf("index taxonomy terms: %w", err)
	}
	for _, term := range terms {
		slug := domain.Slug(term.Vocabulary)
		index.AddTerm(slug, term.ID, domain.ReferenceIndexEntry{
			SourceID:       term.ID,
			EntryUID:       domain.TermUID(slug, term.ID),
			ContentTypeUID: slug,
		})
	}
	b.log.Infof("indexed %d taxonomy term references", len(terms))
	return nil
}
