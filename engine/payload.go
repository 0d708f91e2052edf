package engine

import (
	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/movement"
)

// resultPayload is the JSON shape stored in AnalysisResult.Results
// (spec.md §3: "the full bucketed series and movement summary"). It is
// never round-tripped back into Go types by this package — callers that
// need the series decode the JSON themselves.
type resultPayload struct {
	Buckets         []aggregation.BucketStats `json:"buckets"`
	MixedCurrencies bool                       `json:"mixed_currencies"`
	Movement        *movement.Aggregate        `json:"movement"`
}
