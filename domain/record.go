// Package domain holds the analysis engine's core data model: freight
// records, time periods, analysis requests/results, saved analyses, and
// schedules (spec.md §3).
package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/freightpricing/analysisengine/moneydecimal"
)

// TransportMode enumerates the freight_record transport_mode column.
type TransportMode string

const (
	ModeOcean     TransportMode = "OCEAN"
	ModeAir       TransportMode = "AIR"
	ModeRoad      TransportMode = "ROAD"
	ModeRail      TransportMode = "RAIL"
	ModeIntermodal TransportMode = "INTERMODAL"
)

var validModes = map[TransportMode]bool{
	ModeOcean: true, ModeAir: true, ModeRoad: true, ModeRail: true, ModeIntermodal: true,
}

func (m TransportMode) Valid() bool { return validModes[m] }

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// FreightRecord is an immutable freight price observation (spec.md §3).
type FreightRecord struct {
	ID                string
	RecordDate        time.Time
	OriginID          string
	DestinationID     string
	CarrierID         string
	TransportMode     TransportMode
	FreightCharge     moneydecimal.Decimal
	CurrencyCode      string
	ServiceLevel      string
	AdditionalCharges Surcharges
	SourceSystem      string
	DataQualityFlag   string
	DeletedAt         *time.Time
}

// Validate enforces the invariants in spec.md §3: non-negative charge,
// well-formed currency, non-null record date.
func (r *FreightRecord) Validate() error {
	if r.FreightCharge.Sign() < 0 {
		return fmt.Errorf("freight_charge must be >= 0, got %s", r.FreightCharge.String())
	}
	if !currencyPattern.MatchString(r.CurrencyCode) {
		return fmt.Errorf("currency_code %q is not a well-formed ISO-4217 code", r.CurrencyCode)
	}
	if r.RecordDate.IsZero() {
		return fmt.Errorf("record_date is required")
	}
	if r.TransportMode != "" && !r.TransportMode.Valid() {
		return fmt.Errorf("transport_mode %q is not recognized", r.TransportMode)
	}
	return nil
}

// IsDeleted reports whether the record is soft-deleted; the core only
// reads non-deleted rows (spec.md §3).
func (r *FreightRecord) IsDeleted() bool { return r.DeletedAt != nil }
