package domain

import (
	"fmt"
	"time"
)

// TokenUsage tracks token counts and derived cost for a session or a
// single delta. All fields are non-negative; cost is always recomputed
// from the counts and the model's pricing, never tracked independently.
type TokenUsage struct {
	Input         int     `json:"input"`
	Output        int     `json:"output"`
	CacheCreation int     `json:"cache_creation"`
	CacheRead     int     `json:"cache_read"`
	Cost          float64 `json:"cost"`
}

// Add combines two TokenUsage values.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheCreation += other.CacheCreation
	u.CacheRead += other.CacheRead
	u.Cost += other.Cost
}

// Total returns the sum of all four token counts.
func (u TokenUsage) Total() int {
	return u.Input + u.Output + u.CacheCreation + u.CacheRead
}

// IsZero reports whether the usage carries no tokens and no cost.
func (u TokenUsage) IsZero() bool {
	return u.Input == 0 && u.Output == 0 && u.CacheCreation == 0 &&
		u.CacheRead == 0 && u.Cost == 0
}

// Negative reports whether any field is below zero. Mutating calls reject
// such deltas before anything is written.
func (u TokenUsage) Negative() bool {
	return u.Input < 0 || u.Output < 0 || u.CacheCreation < 0 ||
		u.CacheRead < 0 || u.Cost < 0
}

// UsageEvent is one recorded usage delta, the raw material for the token
// timeline. Events are append-only and owned by the usage store.
type UsageEvent struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Timestamp time.Time  `json:"timestamp"`
	Usage     TokenUsage `json:"token_usage"`
	Messages  int        `json:"messages"`
}

// FormatCost returns a human-readable cost string.
func FormatCost(cost float64) string {
	if cost > 0 && cost < 0.01 {
		return "<$0.01"
	}
	return fmt.Sprintf("$%.2f", cost)
}

// FormatTokens returns a human-readable token count.
func FormatTokens(tokens int) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	if tokens < 1_000_000 {
		return fmt.Sprintf("%.1fk", float64(tokens)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(tokens)/1_000_000)
}
