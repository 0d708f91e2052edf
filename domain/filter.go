package domain

import (
	"fmt"
	"sort"

	"github.com/freightpricing/analysisengine/moneydecimal"
)

// Filter is the typed redesign of the "dynamic configuration dictionary"
// the source used for query filters (spec.md §9 REDESIGN). Only the
// documented keys exist; there is no escape hatch for arbitrary keys.
type Filter struct {
	OriginIDs      []string
	DestinationIDs []string
	CarrierIDs     []string
	TransportModes []TransportMode
	CurrencyCode   string // empty = unfiltered
	CollapseModes  bool
}

// Canonicalize sorts and deduplicates id sets and transport modes, per the
// fingerprint canonicalization rule in spec.md §4.6. Enum values keep the
// case they were given; no case conversion is applied. It returns a
// new Filter; the receiver is left untouched.
func (f Filter) Canonicalize() Filter {
	out := Filter{
		OriginIDs:      sortedUnique(f.OriginIDs),
		DestinationIDs: sortedUnique(f.DestinationIDs),
		CarrierIDs:     sortedUnique(f.CarrierIDs),
		CurrencyCode:   f.CurrencyCode,
		CollapseModes:  f.CollapseModes,
	}
	if len(f.TransportModes) > 0 {
		seen := make(map[TransportMode]bool, len(f.TransportModes))
		modes := make([]TransportMode, 0, len(f.TransportModes))
		for _, m := range f.TransportModes {
			if !seen[m] {
				seen[m] = true
				modes = append(modes, m)
			}
		}
		sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
		out.TransportModes = modes
	}
	return out
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// canonicalSurchargeNames is the allowlist of additional_charges keys the
// boundary accepts (spec.md §9 REDESIGN: "refuse unknown keys at the
// boundary").
var canonicalSurchargeNames = map[string]bool{
	"FUEL_SURCHARGE":       true,
	"SECURITY_SURCHARGE":   true,
	"PEAK_SEASON_SURCHARGE": true,
	"CONGESTION_SURCHARGE": true,
	"CUSTOMS_CLEARANCE":    true,
	"HANDLING_FEE":         true,
	"INSURANCE":            true,
	"DOCUMENTATION_FEE":    true,
}

// Surcharges is the typed sub-record replacing the source's untyped
// additional_charges map (spec.md §9 REDESIGN).
type Surcharges map[string]moneydecimal.Decimal

// NewSurcharges validates that every key is a recognized surcharge name.
func NewSurcharges(raw map[string]moneydecimal.Decimal) (Surcharges, error) {
	out := make(Surcharges, len(raw))
	for name, amount := range raw {
		if !canonicalSurchargeNames[name] {
			return nil, fmt.Errorf("unknown surcharge name %q", name)
		}
		out[name] = amount
	}
	return out, nil
}
