// Package bridge translates classifier class names into knowledge-base
// identifiers and human-readable disease names. All lookups are pure and
// total: unknown labels yield "absent" rather than an error.
package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// classToKB maps the eleven classifier class names to knowledge-base
// slugs. An empty value means the disease has no entry in the current
// knowledge base; detections for those classes are never injected into
// prompts.
var classToKB = map[string]string{
	"Tomato_Bacterial_spot":                      "bacterial-spot",
	"Tomato_Early_blight":                        "early-blight",
	"Tomato_Late_blight":                         "late-blight",
	"Tomato_Leaf_Mold":                           "",
	"Tomato_Septoria_leaf_spot":                  "septoria-leaf-spot",
	"Tomato_Spider_mites_Two-spotted_spider_mite": "",
	"Tomato_Target_Spot":                         "",
	"Tomato_Yellow_Leaf_Curl_Virus":              "",
	"Tomato_mosaic_virus":                        "tomato-mosaic-virus",
	"Tomato_healthy":                             "",
	"Tomato_Leaf_Curl_Virus":                     "",
}

// kbToHuman holds explicit display names for knowledge-base slugs.
var kbToHuman = map[string]string{
	"early-blight":            "Early Blight",
	"late-blight":             "Late Blight",
	"septoria-leaf-spot":      "Septoria Leaf Spot",
	"bacterial-spot":          "Bacterial Spot",
	"tomato-mosaic-virus":     "Tomato Mosaic Virus",
	"physiological-leaf-curl": "Physiological Leaf Curl",
}

// ClassNames returns the fixed set of classifier class names.
func ClassNames() []string {
	names := make([]string, 0, len(classToKB))
	for name := range classToKB {
		names = append(names, name)
	}
	return names
}

// ToKBID maps a classifier class name to a knowledge-base slug.
// ok is false when the class is unknown or has no knowledge-base entry.
func ToKBID(className string) (string, bool) {
	slug, known := classToKB[className]
	if !known || slug == "" {
		return "", false
	}
	return slug, true
}

// ToHumanName returns the display name for a knowledge-base slug,
// falling back to hyphens-to-spaces title casing when no explicit
// entry exists.
func ToHumanName(kbID string) string {
	if name, ok := kbToHuman[kbID]; ok {
		return name
	}
	return titleCase(strings.ReplaceAll(kbID, "-", " "))
}

// DetectionSentence formats a classifier detection for prompt injection.
// Confidence is a percentage. ok is false when the class has no
// knowledge-base entry; no fact may be injected in that case.
func DetectionSentence(className string, confidence float64) (string, bool) {
	slug, ok := ToKBID(className)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("Computer vision analysis suggests: %s (confidence: %s%%).",
		ToHumanName(slug), strconv.FormatFloat(confidence, 'f', -1, 64)), true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
