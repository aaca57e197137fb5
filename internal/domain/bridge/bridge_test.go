package bridge

import (
	"strings"
	"testing"
)

// Every classifier class must resolve without panicking, and mapped
// slugs must stay inside the known knowledge-base id set.
func TestToKBID_TotalOverClassSet(t *testing.T) {
	mapped := map[string]string{
		"Tomato_Bacterial_spot":     "bacterial-spot",
		"Tomato_Early_blight":       "early-blight",
		"Tomato_Late_blight":        "late-blight",
		"Tomato_Septoria_leaf_spot": "septoria-leaf-spot",
		"Tomato_mosaic_virus":       "tomato-mosaic-virus",
	}

	names := ClassNames()
	if len(names) != 11 {
		t.Fatalf("expected 11 classifier classes, got %d", len(names))
	}

	for _, name := range names {
		slug, ok := ToKBID(name)
		want, isMapped := mapped[name]
		if isMapped {
			if !ok || slug != want {
				t.Errorf("ToKBID(%q) = (%q, %v), want (%q, true)", name, slug, ok, want)
			}
			continue
		}
		if ok || slug != "" {
			t.Errorf("ToKBID(%q) = (%q, %v), want absent", name, slug, ok)
		}
	}
}

func TestToKBID_UnknownClassIsAbsent(t *testing.T) {
	if slug, ok := ToKBID("Potato_Late_blight"); ok || slug != "" {
		t.Errorf("unknown class mapped to %q", slug)
	}
	if _, ok := ToKBID(""); ok {
		t.Error("empty class should be absent")
	}
}

func TestToHumanName(t *testing.T) {
	tests := []struct {
		kbID string
		want string
	}{
		{"early-blight", "Early Blight"},
		{"late-blight", "Late Blight"},
		{"septoria-leaf-spot", "Septoria Leaf Spot"},
		{"bacterial-spot", "Bacterial Spot"},
		{"tomato-mosaic-virus", "Tomato Mosaic Virus"},
		{"physiological-leaf-curl", "Physiological Leaf Curl"},
		// Fallback rule: hyphens to spaces, title case.
		{"leaf-mold", "Leaf Mold"},
		{"target-spot", "Target Spot"},
	}
	for _, tt := range tests {
		if got := ToHumanName(tt.kbID); got != tt.want {
			t.Errorf("ToHumanName(%q) = %q, want %q", tt.kbID, got, tt.want)
		}
	}
}

func TestDetectionSentence(t *testing.T) {
	got, ok := DetectionSentence("Tomato_Early_blight", 92.5)
	if !ok {
		t.Fatal("expected a sentence for a mapped class")
	}
	want := "Computer vision analysis suggests: Early Blight (confidence: 92.5%)."
	if got != want {
		t.Errorf("sentence = %q, want %q", got, want)
	}
}

func TestDetectionSentence_UnmappedClassYieldsNothing(t *testing.T) {
	for _, name := range []string{"Tomato_healthy", "Tomato_Leaf_Mold", "Cucumber_blight"} {
		if s, ok := DetectionSentence(name, 99.9); ok || s != "" {
			t.Errorf("DetectionSentence(%q) = %q, want absent", name, s)
		}
	}
}

func TestDetectionSentence_WholeConfidenceFormatting(t *testing.T) {
	got, _ := DetectionSentence("Tomato_Late_blight", 88)
	if !strings.Contains(got, "(confidence: 88%)") {
		t.Errorf("whole-number confidence formatted badly: %q", got)
	}
}
