package stock

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// FoldName returns the comparison key for an item name: NFC-normalised,
// trimmed, inner whitespace collapsed and Unicode case folded. Two names clash
// within a category when their keys are equal.
func FoldName(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	return folder.String(norm.NFC.String(collapsed))
}

// CleanName trims and collapses whitespace but keeps the caller's casing.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
