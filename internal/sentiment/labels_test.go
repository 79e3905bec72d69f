package sentiment

import (
	"strings"
	"testing"

	"github.com/spacesedan/sentiscope/internal/models"
)

func TestMergeOverridesCaseVariants(t *testing.T) {
	// run repeatedly so a map-order dependency would show up
	for i := 0; i < 50; i++ {
		merged := DefaultLabelMaps().Merge(LabelMaps{
			General: LabelMap{"pos": models.LabelNeutral},
		})

		if got := merged.General.Normalize("POS", nil); got != models.LabelNeutral {
			t.Fatalf("run %d: POS = %q, want override %q", i, got, models.LabelNeutral)
		}
		if got := merged.General.Normalize("Pos", nil); got != models.LabelNeutral {
			t.Fatalf("run %d: Pos = %q, want override %q", i, got, models.LabelNeutral)
		}
		if _, ok := merged.General["pos"]; ok {
			t.Fatal("merged keys should be upper-cased")
		}
	}
}

func TestNormalize(t *testing.T) {
	m := LabelMaps{}.Merge(DefaultLabelMaps()).Aspect

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"exact key", "NEG", models.AspectNegative},
		{"trimmed and folded", " neu ", models.AspectNeutral},
		{"unknown label falls back", "Mixed", "mixed"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Normalize(tt.raw, strings.ToLower); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
