package schedule

import (
	"fmt"
	"sort"
	"strings"
)

// Family identifies the vocabulary a schedule type was written in.
type Family string

const (
	FamilyWorkflow Family = "workflow"
	FamilyNotebook Family = "notebook"
	FamilyDataSync Family = "data_sync"
)

var Families = []Family{FamilyWorkflow, FamilyNotebook, FamilyDataSync}

// ParseFamily accepts the family name in snake, kebab or camel case.
func ParseFamily(s string) (Family, error) {
	k := foldKey(s)
	for _, f := range Families {
		if foldKey(string(f)) == k {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown family %q", s)
}

// DefaultTable returns a fresh copy of the built-in vocabulary mapping.
//
// Data-sync jobs have no monthly cadence; "monthly" maps to HOURLY there.
func DefaultTable() map[Family]map[string]Frequency {
	return map[Family]map[string]Frequency{
		FamilyWorkflow: {
			"once":     Once,
			"hourly":   Hourly,
			"daily":    Daily,
			"weekly":   Weekly,
			"monthly":  Monthly,
			"interval": Interval,
			"cron":     Cron,
		},
		FamilyNotebook: {
			"once":     Once,
			"one_time": Once,
			"hourly":   Hourly,
			"daily":    Daily,
			"weekly":   Weekly,
			"monthly":  Monthly,
			"interval": Interval,
			"custom":   Cron,
			"cron":     Cron,
		},
		FamilyDataSync: {
			"manual":  Once,
			"hourly":  Hourly,
			"daily":   Daily,
			"weekly":  Weekly,
			"monthly": Hourly,
			"custom":  Cron,
		},
	}
}

// Normalizer maps family-specific schedule types onto canonical frequencies.
// Lookups are case-insensitive. It is read-only after construction.
type Normalizer struct {
	tables map[Family]map[string]Frequency
}

// NewNormalizer builds a normalizer from the default table with overrides
// applied on top. Overrides are keyed by family, then by raw type, and must
// target a canonical frequency.
func NewNormalizer(overrides map[string]map[string]string) (*Normalizer, error) {
	tables := DefaultTable()
	fams := make([]string, 0, len(overrides))
	for k := range overrides {
		fams = append(fams, k)
	}
	sort.Strings(fams)
	for _, rawFam := range fams {
		fam, err := ParseFamily(rawFam)
		if err != nil {
			return nil, err
		}
		for raw, target := range overrides[rawFam] {
			f := Frequency(strings.ToUpper(strings.TrimSpace(target)))
			if !f.Canonical() {
				return nil, fmt.Errorf("normalizer override %s.%s: %q is not a canonical frequency", fam, raw, target)
			}
			key := strings.ToLower(strings.TrimSpace(raw))
			if key == "" {
				return nil, fmt.Errorf("normalizer override %s: empty type", fam)
			}
			tables[fam][key] = f
		}
	}
	return &Normalizer{tables: tables}, nil
}

// DefaultNormalizer returns a normalizer with the built-in table.
func DefaultNormalizer() *Normalizer {
	return &Normalizer{tables: DefaultTable()}
}

// Normalize maps raw to its canonical frequency. Unknown values pass through
// unchanged and ok is false; callers treat them as opaque cron-like data.
func (n *Normalizer) Normalize(raw string, fam Family) (f Frequency, ok bool) {
	if n == nil {
		n = DefaultNormalizer()
	}
	if t, found := n.tables[fam]; found {
		if f, found := t[strings.ToLower(strings.TrimSpace(raw))]; found {
			return f, true
		}
	}
	return Frequency(raw), false
}

// Table returns a copy of the mapping for fam, for display.
func (n *Normalizer) Table(fam Family) map[string]Frequency {
	out := map[string]Frequency{}
	if n == nil {
		return out
	}
	for k, v := range n.tables[fam] {
		out[k] = v
	}
	return out
}

func foldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
