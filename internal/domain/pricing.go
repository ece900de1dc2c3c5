package domain

import "strings"

// ModelPricing holds USD rates per one million tokens for a model.
type ModelPricing struct {
	Input      float64 `yaml:"input" json:"input"`
	Output     float64 `yaml:"output" json:"output"`
	CacheWrite float64 `yaml:"cache_write" json:"cache_write"`
	CacheRead  float64 `yaml:"cache_read" json:"cache_read"`
}

// PricingTable maps model identifiers to their rates. Lookup falls back
// to family substring matching and finally to the "default" entry, so
// dated model ids like claude-sonnet-4-20250514 resolve without an exact
// table entry.
type PricingTable map[string]ModelPricing

// DefaultPricing returns the built-in rates for the known Claude model
// families. A config file can override or extend these.
func DefaultPricing() PricingTable {
	return PricingTable{
		"opus":    {Input: 15.0, Output: 75.0, CacheWrite: 18.75, CacheRead: 1.50},
		"sonnet":  {Input: 3.0, Output: 15.0, CacheWrite: 3.75, CacheRead: 0.30},
		"haiku":   {Input: 0.80, Output: 4.0, CacheWrite: 1.0, CacheRead: 0.08},
		"default": {Input: 3.0, Output: 15.0, CacheWrite: 3.75, CacheRead: 0.30},
	}
}

// For resolves the pricing for a model identifier.
func (t PricingTable) For(model string) ModelPricing {
	if p, ok := t[model]; ok {
		return p
	}
	lower := strings.ToLower(model)
	for family, p := range t {
		if family == "default" {
			continue
		}
		if strings.Contains(lower, family) {
			return p
		}
	}
	return t["default"]
}

// Cost computes the deterministic cost of a usage delta under the model's
// rates. Monotonic in every count; zero tokens cost zero.
func (t PricingTable) Cost(model string, u TokenUsage) float64 {
	p := t.For(model)
	return float64(u.Input)*p.Input/1_000_000 +
		float64(u.Output)*p.Output/1_000_000 +
		float64(u.CacheCreation)*p.CacheWrite/1_000_000 +
		float64(u.CacheRead)*p.CacheRead/1_000_000
}

// Price returns a copy of the delta with its cost filled in from the
// model's rates.
func (t PricingTable) Price(model string, u TokenUsage) TokenUsage {
	u.Cost = t.Cost(model, u)
	return u
}

// Merge overlays other's entries onto a copy of the table.
func (t PricingTable) Merge(other PricingTable) PricingTable {
	merged := make(PricingTable, len(t)+len(other))
	for k, v := range t {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}
