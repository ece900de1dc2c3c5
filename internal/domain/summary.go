package domain

import (
	"sort"
	"time"
)

// MetricsSummary is a point-in-time rollup across sessions. It is derived
// state: always recomputed from the session store, never persisted.
type MetricsSummary struct {
	TotalSessions  int            `json:"total_sessions"`
	ActiveSessions int            `json:"active_sessions"`
	TotalTokens    int            `json:"total_tokens"`
	TotalCost      float64        `json:"total_cost"`
	ByModel        []ModelStats   `json:"by_model"`
	ByProject      []ProjectStats `json:"by_project"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// ModelStats aggregates usage for one model across sessions.
type ModelStats struct {
	Model    string     `json:"model"`
	Sessions int        `json:"sessions"`
	Usage    TokenUsage `json:"token_usage"`
}

// ProjectStats aggregates sessions sharing a project name. Projects are
// virtual: reconstructed by grouping, never stored.
type ProjectStats struct {
	Project      string     `json:"project"`
	Path         string     `json:"path"`
	Sessions     int        `json:"sessions"`
	Active       int        `json:"active"`
	Usage        TokenUsage `json:"token_usage"`
	LastActivity time.Time  `json:"last_activity"`
}

// Summarize rolls the given sessions up into a MetricsSummary. Pure
// function of its inputs; callers filter the session set to the time
// range they care about before summarizing.
func Summarize(sessions []*Session, now time.Time) MetricsSummary {
	summary := MetricsSummary{
		ByModel:     []ModelStats{},
		ByProject:   []ProjectStats{},
		GeneratedAt: now,
	}
	models := make(map[string]*ModelStats)
	projects := make(map[string]*ProjectStats)

	for _, sess := range sessions {
		summary.TotalSessions++
		if sess.Status == StatusWorking {
			summary.ActiveSessions++
		}
		summary.TotalTokens += sess.TokenUsage.Total()
		summary.TotalCost += sess.TokenUsage.Cost

		m := models[sess.Model]
		if m == nil {
			m = &ModelStats{Model: sess.Model}
			models[sess.Model] = m
		}
		m.Sessions++
		m.Usage.Add(sess.TokenUsage)

		p := projects[sess.ProjectName]
		if p == nil {
			p = &ProjectStats{Project: sess.ProjectName, Path: sess.ProjectPath}
			projects[sess.ProjectName] = p
		}
		p.Sessions++
		if sess.Status == StatusWorking {
			p.Active++
		}
		p.Usage.Add(sess.TokenUsage)
		if sess.UpdatedAt.After(p.LastActivity) {
			p.LastActivity = sess.UpdatedAt
			p.Path = sess.ProjectPath
		}
	}

	for _, m := range models {
		summary.ByModel = append(summary.ByModel, *m)
	}
	sort.Slice(summary.ByModel, func(i, j int) bool {
		return summary.ByModel[i].Usage.Cost > summary.ByModel[j].Usage.Cost
	})
	for _, p := range projects {
		summary.ByProject = append(summary.ByProject, *p)
	}
	sort.Slice(summary.ByProject, func(i, j int) bool {
		return summary.ByProject[i].LastActivity.After(summary.ByProject[j].LastActivity)
	})
	return summary
}
