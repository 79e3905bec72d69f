package sentiment

import (
	"sort"
	"strings"

	"github.com/spacesedan/sentiscope/internal/models"
)

// LabelMap translates raw model labels into the service vocabulary. Keys are
// matched case-insensitively; Merge stores them upper-cased.
type LabelMap map[string]string

// Normalize looks raw up in the map and falls back to fold(raw) when there
// is no entry.
func (m LabelMap) Normalize(raw string, fold func(string) string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if v, ok := m[strings.ToUpper(raw)]; ok {
		return v
	}
	return fold(raw)
}

// into copies m into dst with upper-cased keys. Later writes win, so keys
// that differ only in case resolve to whichever map is applied last.
func (m LabelMap) into(dst LabelMap) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// fixed order so case-only duplicates inside one map resolve the same way every run
	sort.Strings(keys)
	for _, k := range keys {
		dst[strings.ToUpper(strings.TrimSpace(k))] = m[k]
	}
}

func (m LabelMap) fingerprint() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte(';')
	}
	return b.String()
}

type LabelMaps struct {
	General LabelMap `yaml:"general"`
	Aspect  LabelMap `yaml:"aspect"`
}

func DefaultLabelMaps() LabelMaps {
	return LabelMaps{
		General: LabelMap{
			"LABEL_0": models.LabelNegative,
			"LABEL_1": models.LabelPositive,
			"POS":     models.LabelPositive,
			"NEG":     models.LabelNegative,
			"NEU":     models.LabelNeutral,
		},
		Aspect: LabelMap{
			"POS": models.AspectPositive,
			"NEG": models.AspectNegative,
			"NEU": models.AspectNeutral,
		},
	}
}

// Merge returns a copy of m with the entries of other added on top. Keys are
// upper-cased, so an entry in other replaces any entry of m that differs
// only in case.
func (m LabelMaps) Merge(other LabelMaps) LabelMaps {
	merged := LabelMaps{General: LabelMap{}, Aspect: LabelMap{}}
	m.General.into(merged.General)
	other.General.into(merged.General)
	m.Aspect.into(merged.Aspect)
	other.Aspect.into(merged.Aspect)
	return merged
}

func (m LabelMaps) fingerprint() string {
	return "general:" + m.General.fingerprint() + "|aspect:" + m.Aspect.fingerprint()
}
