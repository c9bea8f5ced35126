// Package locales maps source language codes onto destination locale
// codes and builds the locale set a migration run writes out.
package locales

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

// MasterKey is the distinguished user-mapping key addressing the master
// locale slot rather than a concrete source code.
const MasterKey = "master"

// Codes of the historical language-neutral combination. Downstream
// systems key off the exact destination codes these produce, so the rule
// table in applySpecialCases must not drift.
const (
	neutralCode   = "und"
	bareCode      = "en"
	qualifiedCode = "en-us"
)

// Mapper resolves source language codes to destination locale codes.
type Mapper struct {
	masterSource string
	masterDest   string
	userMapping  map[string]string
	log          *logger.Logger
}

// NewMapper creates a mapper. masterSource is the source code occupying
// the master slot, masterDest the destination code it maps to.
func NewMapper(masterSource, masterDest string, userMapping map[string]string, log *logger.Logger) *Mapper {
	if userMapping == nil {
		userMapping = map[string]string{}
	}
	return &Mapper{
		masterSource: strings.ToLower(masterSource),
		masterDest:   strings.ToLower(masterDest),
		userMapping:  userMapping,
		log:          log,
	}
}

// MapLocale resolves one source code. First match wins: explicit user
// mapping, the master slot, a code already equal to the destination
// master, and finally the lower-cased source code unchanged.
func (m *Mapper) MapLocale(sourceCode string) string {
	code := strings.ToLower(sourceCode)

	if dest, ok := m.userMapping[code]; ok {
		return strings.ToLower(dest)
	}
	if code == m.masterSource {
		if dest, ok := m.userMapping[MasterKey]; ok {
			return strings.ToLower(dest)
		}
		return m.masterDest
	}
	if strings.EqualFold(code, m.masterDest) {
		return m.masterDest
	}
	return code
}

// applySpecialCases remaps the language-neutral code depending on which
// of its sibling codes appear in the same source locale set:
//
//	neutral alone                -> neutral becomes region-qualified
//	neutral + qualified, no bare -> neutral becomes bare
//	neutral + bare, no qualified -> neutral becomes region-qualified
//	all three present            -> all pass through unchanged
//
// The returned map rewrites source codes ahead of MapLocale.
func applySpecialCases(codes []string) map[string]string {
	present := make(map[string]bool, len(codes))
	for _, code := range codes {
		present[strings.ToLower(code)] = true
	}
	remap := map[string]string{}
	if !present[neutralCode] {
		return remap
	}

	switch {
	case present[bareCode] && present[qualifiedCode]:
		// unchanged
	case present[qualifiedCode]:
		remap[neutralCode] = bareCode
	default:
		// bare present, or neutral alone
		remap[neutralCode] = qualifiedCode
	}
	return remap
}

// Build reads the source locale set and produces the run's LocaleSet:
// exactly one master entry and N non-master entries, each falling back
// to the master's destination code.
func (m *Mapper) Build(ctx context.Context, store source.Store) (domain.LocaleSet, error) {
	srcLocales, err := store.Locales(ctx)
	if err != nil {
		return domain.LocaleSet{}, fmt.Errorf("read source locales: %w", err)
	}

	codes := make([]string, 0, len(srcLocales))
	for _, l := range srcLocales {
		codes = append(codes, l.Code)
	}
	remap := applySpecialCases(codes)
	for from, to := range remap {
		m.log.Infof("locale %s remapped to %s by neutral-code rules", from, to)
	}

	var set domain.LocaleSet
	seen := make(map[string]bool)
	haveMaster := false

	for _, l := range srcLocales {
		code := strings.ToLower(l.Code)
		if to, ok := remap[code]; ok {
			code = to
		}
		dest := m.MapLocale(code)
		if seen[dest] {
			m.log.Warnf("source locale %s collapses onto already mapped destination %s, skipping", l.Code, dest)
			continue
		}
		seen[dest] = true

		entry := domain.LocaleEntry{
			SourceCode: strings.ToLower(l.Code),
			Code:       dest,
			Name:       l.Name,
		}
		if !haveMaster && (code == m.masterSource || dest == m.masterDest) {
			entry.IsMaster = true
			haveMaster = true
			set.Master = entry
			continue
		}
		set.NonMaster = append(set.NonMaster, entry)
	}

	if !haveMaster {
		// The configured master never appeared in the source set; the
		// run still needs exactly one master locale.
		set.Master = domain.LocaleEntry{
			SourceCode: m.masterSource,
			Code:       m.masterDest,
			Name:       m.masterDest,
			IsMaster:   true,
		}
		m.log.Warnf("master locale %s not present in source, synthesized", m.masterDest)
	}

	for i := range set.NonMaster {
		set.NonMaster[i].Fallback = set.Master.Code
	}
	return set, nil
}
