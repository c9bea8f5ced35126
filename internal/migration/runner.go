// Package migration orchestrates a full run: locales, taxonomies, the
// reference index, assets, query plans, entry transformation and the final
// stack export.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/stackshift/internal/assets"
	"github.com/rpattn/stackshift/internal/config"
	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/export"
	"github.com/rpattn/stackshift/internal/locales"
	"github.com/rpattn/stackshift/internal/queryplan"
	"github.com/rpattn/stackshift/internal/refindex"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/internal/taxonomy"
	"github.com/rpattn/stackshift/internal/transform"
	"github.com/rpattn/stackshift/pkg/batch"
	"github.com/rpattn/stackshift/pkg/logger"
)

// RunState is the run-scoped cache shared by the pipeline stages. It is
// built front to back; the reference index is complete before any entry
// transformation starts.
type RunState struct {
	RunID    string
	Mappings []domain.ContentTypeMapping
	Limits   domain.OrgLimits
	Locales  domain.LocaleSet
	Index    *domain.ReferenceIndex
	Assets   *domain.AssetMap
	Failed   []domain.FailedAssetRecord
	Plans    map[string]queryplan.Plan
	Summary  export.RunSummary
}

// Runner wires the pipeline stages together for one destination stack.
type Runner struct {
	cfg   config.Config
	store source.Store
	log   *logger.Logger
}

// NewRunner creates a runner reading from store and writing the stack
// directory named by cfg.
func NewRunner(cfg config.Config, store source.Store, log *logger.Logger) *Runner {
	return &Runner{cfg: cfg, store: store, log: log}
}

// Run executes the full migration and returns the summary counts.
func (r *Runner) Run(ctx context.Context) (export.RunSummary, error) {
	state := &RunState{
		RunID: uuid.NewString(),
		Plans: make(map[string]queryplan.Plan),
	}
	writer := export.NewWriter(r.cfg.StackDir, r.log)
	r.log.WithField("run_id", state.RunID).Info("starting migration run")

	mappings, err := LoadMappings(r.cfg.MappingDir)
	if err != nil {
		return state.Summary, err
	}
	state.Mappings = mappings
	state.Summary.ContentTypes = len(mappings)

	if limits, ok, err := LoadOrgLimits(r.cfg.MappingDir); err != nil {
		return state.Summary, err
	} else if ok {
		state.Limits = limits
		state.Summary.Warnings += ValidateAdvisory(mappings, limits, r.log)
	}

	if err := r.runLocales(ctx, state, writer); err != nil {
		return state.Summary, err
	}
	if err := r.runTaxonomies(ctx, state, writer); err != nil {
		return state.Summary, err
	}
	if err := r.runReferenceIndex(ctx, state); err != nil {
		return state.Summary, err
	}
	if err := r.runAssets(ctx, state, writer); err != nil {
		return state.Summary, err
	}
	if err := r.runEntries(ctx, state, writer); err != nil {
		return state.Summary, err
	}
	if err := r.finishExport(state, writer); err != nil {
		return state.Summary, err
	}

	r.log.Infof("migration complete: %d content types, %d entries, %d assets downloaded, %d failed",
		state.Summary.ContentTypes, state.Summary.Entries, state.Summary.AssetsDownloaded, state.Summary.AssetsFailed)
	return state.Summary, nil
}

func (r *Runner) runLocales(ctx context.Context, state *RunState, writer *export.Writer) error {
	mapper := r.localeMapper()
	set, err := mapper.Build(ctx, r.store)
	if err != nil {
		return err
	}
	state.Locales = set
	state.Summary.Locales = 1 + len(set.NonMaster)
	return writer.WriteLocales(set)
}

func (r *Runner) localeMapper() *locales.Mapper {
	return locales.NewMapper("und", r.cfg.MasterLocale, r.cfg.LocaleOverrides, r.log)
}

func (r *Runner) runTaxonomies(ctx context.Context, state *RunState, writer *export.Writer) error {
	vocabularies, err := taxonomy.NewExtractor(r.store, r.log).Extract(ctx)
	if err != nil {
		return err
	}
	state.Summary.Vocabularies = len(vocabularies)
	for _, vocab := range vocabularies {
		state.Summary.Terms += len(vocab.Terms)
	}
	return writer.WriteTaxonomies(vocabularies)
}

// runReferenceIndex builds the complete index and persists it. Entry
// transformation must not start before this returns.
func (r *Runner) runReferenceIndex(ctx context.Context, state *RunState) error {
	index, err := refindex.NewBuilder(r.store, r.log).Build(ctx, state.Mappings)
	if err != nil {
		return err
	}
	if err := refindex.NewPersister(r.cfg.StackDir).Save(index); err != nil {
		return err
	}
	state.Index = index
	return nil
}

func (r *Runner) runAssets(ctx context.Context, state *RunState, writer *export.Writer) error {
	pipeline := assets.NewPipeline(r.store, r.cfg.StackDir, r.cfg.AssetBaseURL, r.cfg.AssetTimeout, r.batchOptions(), r.log)

	assetMap, failed, initial, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	remaining, retry, err := pipeline.Retry(ctx, assetMap, failed)
	if err != nil {
		return err
	}
	state.Assets = assetMap
	state.Failed = remaining
	state.Summary.AssetsDownloaded = initial.Downloaded + retry.Downloaded
	state.Summary.AssetsSkipped = initial.Skipped + retry.Skipped
	state.Summary.AssetsFailed = len(remaining)

	if err := writer.WriteAssets(assetMap, remaining); err != nil {
		return err
	}
	return writer.WriteAssetSummary(initial, retry)
}

func (r *Runner) runEntries(ctx context.Context, state *RunState, writer *export.Writer) error {
	synthesizer := queryplan.NewSynthesizer(r.store, r.log)
	planStore := queryplan.NewPlanStore(r.cfg.StackDir)
	transformer := transform.New(transform.Deps{
		Index:   state.Index,
		Locales: state.Locales,
		Assets:  state.Assets,
		Limits:  state.Limits,
	}, r.log)

	for _, mapping := range state.Mappings {
		plan, ok, err := planStore.Load(mapping.SourceType)
		if err != nil {
			return err
		}
		if !ok {
			plan, err = synthesizer.Synthesize(ctx, mapping, r.cfg.Strategy, r.cfg.JoinWidthLimit)
			if errors.Is(err, queryplan.ErrNoResolvableFields) {
				r.log.Warnf("content type %s has no resolvable fields, skipping", mapping.SourceType)
				continue
			}
			if err != nil {
				return err
			}
			if err := planStore.Save(plan); err != nil {
				return err
			}
		}
		state.Plans[mapping.SourceType] = plan

		if err := r.transformContentType(ctx, mapping, plan, synthesizer, transformer, state, writer); err != nil {
			return fmt.Errorf("transform content type %s: %w", mapping.SourceType, err)
		}
	}
	state.Summary.Warnings += transformer.AdvisoryWarnings()
	return nil
}

func (r *Runner) transformContentType(ctx context.Context, mapping domain.ContentTypeMapping, plan queryplan.Plan, synthesizer *queryplan.Synthesizer, transformer *transform.Transformer, state *RunState, writer *export.Writer) error {
	fieldRows, err := synthesizer.Execute(ctx, plan)
	if err != nil {
		return err
	}

	rows, err := r.collectRows(ctx, mapping.SourceType, fieldRows)
	if err != nil {
		return err
	}

	var (
		mu        sync.Mutex
		perLocale = make(map[string][]domain.Entry)
	)
	opts := r.batchOptions()
	opts.OnProgress = func(done, total int) {
		r.log.Infof("content type %s: %d/%d rows transformed", mapping.UID, done, total)
	}
	err = batch.Run(ctx, rows, opts, func(ctx context.Context, row source.Row) error {
		entry := transformer.TransformEntry(row, mapping)
		mu.Lock()
		perLocale[entry.Locale] = append(perLocale[entry.Locale], entry)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	for locale, entries := range perLocale {
		if err := writer.WriteEntries(mapping.UID, locale, entries); err != nil {
			return err
		}
		state.Summary.Entries += len(entries)
	}
	return nil
}

// collectRows pages through the base rows and merges each with the wide
// field row set produced by the query plan.
func (r *Runner) collectRows(ctx context.Context, contentType string, fieldRows map[string]source.Row) ([]source.Row, error) {
	const pageSize = 500
	var rows []source.Row
	for offset := 0; ; offset += pageSize {
		page, err := r.store.BaseRows(ctx, contentType, pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, base := range page {
			row := source.Row{}
			for column, value := range base {
				row[column] = value
			}
			if fields, ok := fieldRows[base["id"]]; ok {
				for column, value := range fields {
					source.MergeValue(row, column, value)
				}
			}
			rows = append(rows, row)
		}
		if len(page) < pageSize {
			break
		}
	}
	return rows, nil
}

func (r *Runner) finishExport(state *RunState, writer *export.Writer) error {
	if err := writer.WriteContentTypes(state.Mappings); err != nil {
		return err
	}
	if err := writer.WriteGlobalFields(globalFields(state.Mappings)); err != nil {
		return err
	}
	if err := writer.WriteManifest(export.Manifest{
		RunID:         state.RunID,
		Source:        r.cfg.Database.DBName,
		SchemaVersion: export.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Counts:        state.Summary.Counts(),
	}); err != nil {
		return err
	}
	return writer.WriteReport(state.Summary, state.Failed)
}

// globalFields collects the global-field schemas used across mappings so
// they can be merged into the shared globals file.
func globalFields(mappings []domain.ContentTypeMapping) []domain.FieldMapping {
	var fields []domain.FieldMapping
	seen := make(map[string]struct{})
	for _, mapping := range mappings {
		for _, field := range mapping.ActiveFields() {
			if field.Type != domain.FieldTypeGlobalField {
				continue
			}
			if _, dup := seen[field.UID]; dup {
				continue
			}
			seen[field.UID] = struct{}{}
			fields = append(fields, field)
		}
	}
	return fields
}

func (r *Runner) batchOptions() batch.Options {
	return batch.Options{
		BatchSize:   r.cfg.BatchSize,
		Concurrency: r.cfg.Concurrency,
		Delay:       r.cfg.BatchDelay,
	}
}
