package locales

import (
	"context"
	"testing"

	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

func newTestMapper(userMapping map[string]string) *Mapper {
	return NewMapper("und", "en-us", userMapping, logger.New())
}

func TestMapLocaleResolutionOrder(t *testing.T) {
	cases := []struct {
		name        string
		userMapping map[string]string
		source      string
		want        string
	}{
		{"user mapping wins", map[string]string{"fr": "fr-ca"}, "fr", "fr-ca"},
		{"master slot key wins for master source", map[string]string{MasterKey: "en-gb"}, "und", "en-gb"},
		{"master source maps to destination master", nil, "und", "en-us"},
		{"destination master passes through", nil, "EN-US", "en-us"},
		{"default lower-cases unchanged", nil, "De", "de"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMapper(tc.userMapping)
			if got := m.MapLocale(tc.source); got != tc.want {
				t.Errorf("MapLocale(%q) = %q, want %q", tc.source, got, tc.want)
			}
		})
	}
}

func TestApplySpecialCases(t *testing.T) {
	cases := []struct {
		name  string
		codes []string
		want  map[string]string
	}{
		{"neutral alone", []string{"und"}, map[string]string{"und": "en-us"}},
		{"neutral with qualified", []string{"und", "en-us"}, map[string]string{"und": "en"}},
		{"neutral with bare", []string{"und", "en"}, map[string]string{"und": "en-us"}},
		{"all three unchanged", []string{"und", "en", "en-us"}, map[string]string{}},
		{"no neutral", []string{"en", "fr"}, map[string]string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := applySpecialCases(tc.codes)
			if len(got) != len(tc.want) {
				t.Fatalf("applySpecialCases(%v) = %v, want %v", tc.codes, got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("applySpecialCases(%v)[%s] = %q, want %q", tc.codes, k, got[k], v)
				}
			}
		})
	}
}

func TestBuildProducesSingleMasterWithFallbacks(t *testing.T) {
	store := source.NewMemStore()
	store.LocaleList = []source.Locale{
		{Code: "und", Name: "Language neutral", Default: true},
		{Code: "fr", Name: "French"},
		{Code: "de", Name: "German"},
	}

	set, err := newTestMapper(nil).Build(context.Background(), store)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !set.Master.IsMaster || set.Master.Code != "en-us" {
		t.Fatalf("expected master en-us, got %+v", set.Master)
	}
	if len(set.NonMaster) != 2 {
		t.Fatalf("expected 2 non-master locales, got %d", len(set.NonMaster))
	}
	for _, entry := range set.NonMaster {
		if entry.IsMaster {
			t.Errorf("non-master entry %s flagged as master", entry.Code)
		}
		if entry.Fallback != "en-us" {
			t.Errorf("entry %s fallback = %q, want en-us", entry.Code, entry.Fallback)
		}
	}
}

func TestBuildAppliesNeutralRuleBeforeMapping(t *testing.T) {
	store := source.NewMemStore()
	store.LocaleList = []source.Locale{
		{Code: "und", Name: "Language neutral", Default: true},
		{Code: "en-us", Name: "English (US)"},
	}

	set, err := newTestMapper(nil).Build(context.Background(), store)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	// und remaps to en ahead of mapping, en-us stays the master.
	if set.Master.Code != "en-us" {
		t.Errorf("master = %q, want en-us", set.Master.Code)
	}
	if len(set.NonMaster) != 1 || set.NonMaster[0].Code != "en" {
		t.Errorf("expected single non-master locale en, got %+v", set.NonMaster)
	}
}

func TestBuildSynthesizesMissingMaster(t *testing.T) {
	store := source.NewMemStore()
	store.LocaleList = []source.Locale{
		{Code: "fr", Name: "French", Default: true},
	}

	set, err := newTestMapper(nil).Build(context.Background(), store)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if set.Master.Code != "en-us" || !set.Master.IsMaster {
		t.Errorf("expected synthesized master en-us, got %+v", set.Master)
	}
	if len(set.NonMaster) != 1 || set.NonMaster[0].Fallback != "en-us" {
		t.Errorf("expected fr falling back to en-us, got %+v", set.NonMaster)
	}
}
