// Package assets downloads source binaries into the stack directory and
// produces the asset map entry transformation resolves against.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/batch"
	"github.com/rpattn/stackshift/pkg/logger"
)

// Summary aggregates the outcome counts of one asset pass. Every asset,
// successful or not, contributes to exactly one counter besides Total.
type Summary struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Pipeline fetches source assets with bounded concurrency and records
// per-asset metadata next to each downloaded binary.
type Pipeline struct {
	store   source.Store
	client  *http.Client
	log     *logger.Logger
	dir     string
	baseURL string
	opts    batch.Options
}

// NewPipeline creates a pipeline writing binaries under dir. baseURL
// resolves scheme-relative source URIs; timeout bounds every download.
func NewPipeline(store source.Store, dir, baseURL string, timeout time.Duration, opts batch.Options, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		client:  &http.Client{Timeout: timeout},
		log:     log,
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    opts,
	}
}

// Run fetches every source asset. Failures never abort the pass; an asset
// whose download fails twice in a row becomes a FailedAssetRecord.
func (p *Pipeline) Run(ctx context.Context) (*domain.AssetMap, []domain.FailedAssetRecord, Summary, error) {
	srcAssets, err := p.store.Assets(ctx, nil)
	if err != nil {
		return nil, nil, Summary{}, fmt.Errorf("list source assets: %w", err)
	}
	assetMap := domain.NewAssetMap()
	failed, summary, err := p.fetchAll(ctx, srcAssets, assetMap)
	return assetMap, failed, summary, err
}

// Retry re-attempts only the assets named in failed, using a narrower
// re-query, and removes the records that succeed this time.
func (p *Pipeline) Retry(ctx context.Context, assetMap *domain.AssetMap, failed []domain.FailedAssetRecord) ([]domain.FailedAssetRecord, Summary, error) {
	if len(failed) == 0 {
		return nil, Summary{}, nil
	}
	ids := make([]string, 0, len(failed))
	for _, record := range failed {
		ids = append(ids, record.SourceID)
	}
	srcAssets, err := p.store.Assets(ctx, ids)
	if err != nil {
		return failed, Summary{}, fmt.Errorf("re-query failed assets: %w", err)
	}
	return p.fetchAll(ctx, srcAssets, assetMap)
}

func (p *Pipeline) fetchAll(ctx context.Context, srcAssets []source.Asset, assetMap *domain.AssetMap) ([]domain.FailedAssetRecord, Summary, error) {
	var (
		mu      sync.Mutex
		failed  []domain.FailedAssetRecord
		summary Summary
	)
	summary.Total = len(srcAssets)

	err := batch.Run(ctx, srcAssets, p.opts, func(ctx context.Context, asset source.Asset) error {
		record, skipped, fetchErr := p.fetchAndStore(ctx, asset)

		mu.Lock()
		defer mu.Unlock()
		if fetchErr != nil {
			p.log.Warnf("asset %s failed after retry: %v", asset.ID, fetchErr)
			failed = append(failed, domain.FailedAssetRecord{
				SourceID: asset.ID,
				Filename: asset.Filename,
				URL:      p.ResolveURL(asset.URI),
				Reason:   fetchErr.Error(),
				Attempts: 2,
			})
			summary.Failed++
			return nil
		}
		assetMap.Add(record, domain.NormalizeAssetPath(asset.URI))
		if skipped {
			summary.Skipped++
		} else {
			summary.Downloaded++
		}
		return nil
	})
	return failed, summary, err
}

// fetchAndStore resolves the storable URL, skips the download when the
// target file already exists and otherwise downloads with one retry. The
// binary is written alongside a metadata sidecar.
func (p *Pipeline) fetchAndStore(ctx context.Context, asset source.Asset) (domain.AssetRecord, bool, error) {
	record := domain.AssetRecord{
		UID:         domain.AssetUIDForSource(asset.ID),
		SourceURI:   asset.URI,
		ResolvedURL: p.ResolveURL(asset.URI),
		Filename:    asset.Filename,
		MimeType:    asset.MimeType,
		SizeBytes:   asset.Size,
		LocalPath:   filepath.Join(p.dir, "files", filepath.FromSlash(domain.NormalizeAssetPath(asset.URI))),
	}

	if info, err := os.Stat(record.LocalPath); err == nil && info.Size() > 0 {
		return record, true, nil
	}

	err := p.download(ctx, &record)
	if err != nil {
		// one immediate retry before giving up
		err = p.download(ctx, &record)
	}
	if err != nil {
		return record, false, err
	}
	if err := p.writeSidecar(record); err != nil {
		return record, false, err
	}
	return record, false, nil
}

func (p *Pipeline) download(ctx context.Context, record *domain.AssetRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, record.ResolvedURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", record.ResolvedURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %d", record.ResolvedURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(record.LocalPath), 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	out, err := os.Create(record.LocalPath)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(record.LocalPath)
		return fmt.Errorf("write asset file: %w", err)
	}
	record.SizeBytes = written
	if record.MimeType == "" {
		record.MimeType = resp.Header.Get("Content-Type")
	}
	return nil
}

func (p *Pipeline) writeSidecar(record domain.AssetRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal asset metadata: %w", err)
	}
	if err := os.WriteFile(record.LocalPath+".json", data, 0o644); err != nil {
		return fmt.Errorf("write asset metadata: %w", err)
	}
	return nil
}

// ResolveURL turns a source file URI into a downloadable URL. Managed
// scheme prefixes map onto the public and private file roots, absolute
// URLs pass through and anything else is joined onto the base URL.
func (p *Pipeline) ResolveURL(uri string) string {
	switch {
	case strings.HasPrefix(uri, "public://"):
		return p.baseURL + "/sites/default/files/" + strings.TrimPrefix(uri, "public://")
	case strings.HasPrefix(uri, "private://"):
		return p.baseURL + "/system/files/" + strings.TrimPrefix(uri, "private://")
	case strings.HasPrefix(uri, "//"):
		return "https:" + uri
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri
	default:
		return p.baseURL + "/" + strings.TrimPrefix(uri, "/")
	}
}
