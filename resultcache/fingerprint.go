package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/freightpricing/analysisengine/domain"
)

// SchemaVersion is the byte embedded in every canonical fingerprint
// document (spec.md §4.6); bumping it invalidates all previously cached
// fingerprints.
const SchemaVersion = 1

// Fingerprint computes the deterministic, byte-stable hash of an
// analysis's inputs (spec.md §4.6): parameters, a snapshot of the
// referenced time period, and the output format, serialized as
// canonical JSON (sorted keys, sorted/deduped id arrays, uppercase
// enums, defaults elided) and hashed with SHA-256.
//
// Two requests that canonicalize to the same document always produce
// the same fingerprint; any semantic difference changes it.
func Fingerprint(params domain.Parameters, tp domain.TimePeriod) (string, error) {
	doc := canonicalDocument(params, tp)

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalDocument builds the JSON-serializable map used for hashing.
// Go's encoding/json sorts map[string]interface{} keys lexicographically
// on marshal, which gives us the required key ordering for free.
func canonicalDocument(params domain.Parameters, tp domain.TimePeriod) map[string]any {
	canon := params.Filters.Canonicalize()

	doc := map[string]any{
		"schema_version":    SchemaVersion,
		"time_period_id":    params.TimePeriodID,
		"time_period_start": tp.StartDate.UTC().Format(time.RFC3339),
		"time_period_end":   tp.EndDate.UTC().Format(time.RFC3339),
		"granularity":       string(tp.Granularity),
	}
	if tp.Granularity == domain.Custom {
		doc["custom_interval_days"] = tp.CustomIntervalDays
	}

	filters := map[string]any{}
	if len(canon.OriginIDs) > 0 {
		filters["origin_ids"] = canon.OriginIDs
	}
	if len(canon.DestinationIDs) > 0 {
		filters["destination_ids"] = canon.DestinationIDs
	}
	if len(canon.CarrierIDs) > 0 {
		filters["carrier_ids"] = canon.CarrierIDs
	}
	if len(canon.TransportModes) > 0 {
		modes := make([]string, len(canon.TransportModes))
		for i, m := range canon.TransportModes {
			modes[i] = string(m)
		}
		filters["transport_modes"] = modes
	}
	if canon.CurrencyCode != "" {
		filters["currency_code"] = canon.CurrencyCode
	}
	if canon.CollapseModes {
		filters["collapse_modes"] = true
	}
	if len(filters) > 0 {
		doc["filters"] = filters
	}

	if params.OutputFormat != "" && params.OutputFormat != domain.FormatJSON {
		doc["output_format"] = string(params.OutputFormat)
	}
	if params.IncludeVisualization {
		doc["include_visualization"] = true
	}

	return doc
}
