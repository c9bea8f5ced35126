package domain

// LocaleEntry maps one source locale code onto a destination locale.
// Exactly one entry per migration run is the master; every non-master
// entry falls back to the master's destination code.
type LocaleEntry struct {
	SourceCode string `json:"source_code"`
	Code       string `json:"code"`
	Name       string `json:"name,omitempty"`
	IsMaster   bool   `json:"is_master"`
	Fallback   string `json:"fallback_locale,omitempty"`
}

// LocaleSet is the resolved locale inventory of one migration run.
type LocaleSet struct {
	Master    LocaleEntry
	NonMaster []LocaleEntry
}

// All returns the master followed by every non-master entry.
func (s LocaleSet) All() []LocaleEntry {
	all := make([]LocaleEntry, 0, len(s.NonMaster)+1)
	all = append(all, s.Master)
	all = append(all, s.NonMaster...)
	return all
}

// BySource returns the entry whose source code matches, if any.
func (s LocaleSet) BySource(sourceCode string) (LocaleEntry, bool) {
	if s.Master.SourceCode == sourceCode {
		return s.Master, true
	}
	for _, entry := range s.NonMaster {
		if entry.SourceCode == sourceCode {
			return entry, true
		}
	}
	return LocaleEntry{}, false
}
