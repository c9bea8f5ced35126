// Package taxonomy extracts source vocabularies and their terms into the
// destination taxonomy shape.
package taxonomy

import (
	"context"
	"fmt"
	"sort"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

// Extractor groups source terms by vocabulary and resolves their
// parent-child edges.
type Extractor struct {
	store source.Store
	log   *logger.Logger
}

// NewExtractor creates an extractor reading from store.
func NewExtractor(store source.Store, log *logger.Logger) *Extractor {
	return &Extractor{store: store, log: log}
}

// Extract reads all terms and returns one Vocabulary per source
// vocabulary, sorted by UID. Hierarchy is optional; a source without any
// parent edges yields flat term lists. A parent id that does not resolve
// within the same vocabulary leaves the term at the root rather than
// dropping it.
func (e *Extractor) Extract(ctx context.Context) ([]domain.Vocabulary, error) {
	terms, err := e.store.Terms(ctx)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy terms: %w", err)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	parents := e.resolveHierarchy(ctx, terms)

	byVocab := make(map[string]*domain.Vocabulary)
	termVocab := make(map[string]string, len(terms))
	for _, term := range terms {
		termVocab[term.ID] = domain.Slug(term.Vocabulary)
	}

	for _, term := range terms {
		slug := domain.Slug(term.Vocabulary)
		vocab, ok := byVocab[slug]
		if !ok {
			vocab = &domain.Vocabulary{UID: slug, Name: term.VocabularyName}
			byVocab[slug] = vocab
		}

		out := domain.TaxonomyTerm{
			TaxonomyUID: slug,
			UID:         domain.TermUID(slug, term.ID),
			Name:        term.Name,
			Description: term.Description,
		}
		if parentID, ok := parents[term.ID]; ok && parentID != "" && parentID != "0" {
			if termVocab[parentID] == slug {
				out.ParentUID = domain.TermUID(slug, parentID)
			} else {
				e.log.Warnf("term %s parent %s not found in vocabulary %s, keeping term at root", term.ID, parentID, slug)
			}
		}
		vocab.Terms = append(vocab.Terms, out)
	}

	uids := make([]string, 0, len(byVocab))
	for uid := range byVocab {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	vocabularies := make([]domain.Vocabulary, 0, len(uids))
	for _, uid := range uids {
		vocab := byVocab[uid]
		sort.Slice(vocab.Terms, func(i, j int) bool { return vocab.Terms[i].UID < vocab.Terms[j].UID })
		vocabularies = append(vocabularies, *vocab)
	}
	return vocabularies, nil
}

// resolveHierarchy tries the known hierarchy representations in order and
// uses the first non-empty one: the dedicated hierarchy table first, then
// the parent column carried on the terms themselves.
func (e *Extractor) resolveHierarchy(ctx context.Context, terms []source.Term) map[string]string {
	hierarchy, err := e.store.TermHierarchy(ctx)
	if err != nil {
		e.log.Warnf("term hierarchy table unreadable, falling back to parent column: %v", err)
	} else if len(hierarchy) > 0 {
		return hierarchy
	}

	parents := make(map[string]string)
	for _, term := range terms {
		if term.ParentID != "" {
			parents[term.ID] = term.ParentID
		}
	}
	return parents
}
