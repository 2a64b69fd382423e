package domain

import "time"

// ModelPrice is one dated price snapshot for a model. Prices are stored
// in US dollars per million tokens. Multiple raw identifiers may alias
// to one canonical id; only the latest dated snapshot for a canonical id
// is authoritative at any time.
type ModelPrice struct {
	// RawID is the provider-facing identifier the snapshot was recorded
	// under (e.g. a dated model name).
	RawID string `json:"raw_id"`

	// CanonicalID is the de-duplicated identity used for lookups.
	CanonicalID string `json:"canonical_id"`

	// InputUSDPer1M and OutputUSDPer1M are dollar rates per million tokens.
	InputUSDPer1M  float64 `json:"input_usd_per_1m"`
	OutputUSDPer1M float64 `json:"output_usd_per_1m"`

	// EffectiveDate orders snapshots; the most recent one wins.
	EffectiveDate time.Time `json:"effective_date"`
}

// InputRatePer1K returns the input rate in dollars per thousand tokens.
func (p ModelPrice) InputRatePer1K() float64 { return p.InputUSDPer1M / 1000 }

// OutputRatePer1K returns the output rate in dollars per thousand tokens.
func (p ModelPrice) OutputRatePer1K() float64 { return p.OutputUSDPer1M / 1000 }

// Cost computes the dollar cost for the given token counts against this
// snapshot. Pure and idempotent: fixed inputs always yield the same
// value.
//
//	cost = in/1000 * (InputUSDPer1M/1000) + out/1000 * (OutputUSDPer1M/1000)
func (p ModelPrice) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputRatePer1K() +
		float64(outputTokens)/1000*p.OutputRatePer1K()
}

// StaticPrice builds a synthetic snapshot from a model's static per-token
// costs. Returns false when the model does not carry both rates.
func StaticPrice(m Model) (ModelPrice, bool) {
	if m.InputUSDPer1M == nil || m.OutputUSDPer1M == nil {
		return ModelPrice{}, false
	}
	return ModelPrice{
		RawID:          m.Identifier,
		CanonicalID:    m.Identifier,
		InputUSDPer1M:  *m.InputUSDPer1M,
		OutputUSDPer1M: *m.OutputUSDPer1M,
	}, true
}
