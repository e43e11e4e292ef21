package detection

import "strings"

// Category is one of the five top-level classification buckets.
type Category int

const (
	CategoryDOS Category = iota
	CategoryProbe
	CategoryR2L
	CategoryU2R
	CategoryNormal
	// CategoryOther collects labels outside the five known buckets.
	CategoryOther
)

// KnownCategories lists the five buckets in prompt order.
var KnownCategories = []Category{CategoryDOS, CategoryProbe, CategoryR2L, CategoryU2R, CategoryNormal}

var categoryLabels = map[Category]string{
	CategoryDOS:    "DOS",
	CategoryProbe:  "Probe",
	CategoryR2L:    "R2L",
	CategoryU2R:    "U2R",
	CategoryNormal: "normal",
	CategoryOther:  "other",
}

// String returns the wire label of c ("DOS", "Probe", "R2L", "U2R", "normal").
func (c Category) String() string {
	if s, ok := categoryLabels[c]; ok {
		return s
	}
	return "other"
}

// ParseCategory maps a wire label to its category. Matching is exact, the
// backend emits the labels with fixed casing. Anything else is CategoryOther.
func ParseCategory(label string) Category {
	switch label {
	case "DOS":
		return CategoryDOS
	case "Probe":
		return CategoryProbe
	case "R2L":
		return CategoryR2L
	case "U2R":
		return CategoryU2R
	case "normal":
		return CategoryNormal
	default:
		return CategoryOther
	}
}

// Tally holds per-category counts. Other is kept separately so that the five
// known counters only ever see recognized labels.
type Tally struct {
	DOS    int
	Probe  int
	R2L    int
	U2R    int
	Normal int
	Other  int
}

// Add counts one result label.
func (t *Tally) Add(label string) {
	switch ParseCategory(label) {
	case CategoryDOS:
		t.DOS++
	case CategoryProbe:
		t.Probe++
	case CategoryR2L:
		t.R2L++
	case CategoryU2R:
		t.U2R++
	case CategoryNormal:
		t.Normal++
	default:
		// Unrecognized labels never reach the five known counters.
		t.Other++
	}
}

// Count returns the counter for c.
func (t Tally) Count(c Category) int {
	switch c {
	case CategoryDOS:
		return t.DOS
	case CategoryProbe:
		return t.Probe
	case CategoryR2L:
		return t.R2L
	case CategoryU2R:
		return t.U2R
	case CategoryNormal:
		return t.Normal
	default:
		return t.Other
	}
}

// Known returns the sum of the five recognized counters.
func (t Tally) Known() int {
	return t.DOS + t.Probe + t.R2L + t.U2R + t.Normal
}

// Attacks returns the number of recognized non-normal results.
func (t Tally) Attacks() int {
	return t.DOS + t.Probe + t.R2L + t.U2R
}

// fine-grained KDD labels as produced by the classifier, by category
var labelCategories = map[string]Category{
	"normal":          CategoryNormal,
	"neptune":         CategoryDOS,
	"smurf":           CategoryDOS,
	"pod":             CategoryDOS,
	"teardrop":        CategoryDOS,
	"land":            CategoryDOS,
	"back":            CategoryDOS,
	"portsweep":       CategoryProbe,
	"ipsweep":         CategoryProbe,
	"satan":           CategoryProbe,
	"nmap":            CategoryProbe,
	"guess_passwd":    CategoryR2L,
	"ftp_write":       CategoryR2L,
	"imap":            CategoryR2L,
	"phf":             CategoryR2L,
	"multihop":        CategoryR2L,
	"warezmaster":     CategoryR2L,
	"warezclient":     CategoryR2L,
	"spy":             CategoryR2L,
	"buffer_overflow": CategoryU2R,
	"rootkit":         CategoryU2R,
	"loadmodule":      CategoryU2R,
	"perl":            CategoryU2R,
}

// CategoryForLabel maps a fine-grained KDD label (e.g. "neptune") to its
// category. A trailing "." as found in the raw KDD'99 files is ignored.
// Unknown labels are matched by name fragments, then default to DOS, the
// same fallback the classifier service applies.
func CategoryForLabel(label string) Category {
	l := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(label), "."))
	if c, ok := labelCategories[l]; ok {
		return c
	}
	switch {
	case containsAny(l, "dos", "flood", "ddos"):
		return CategoryDOS
	case containsAny(l, "scan", "probe"):
		return CategoryProbe
	case containsAny(l, "r2l", "remote"):
		return CategoryR2L
	case containsAny(l, "u2r", "root", "privilege"):
		return CategoryU2R
	default:
		return CategoryDOS
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
