package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ksred/claude-session-manager/internal/store"
)

// Filterable columns per table. Anything outside these maps is rejected
// before it reaches SQL.
var (
	sessionFilterColumns = map[string]bool{
		"status":       true,
		"project_name": true,
		"model":        true,
	}
	sessionOrderColumns = map[string]bool{
		"updated_at":   true,
		"created_at":   true,
		"project_name": true,
	}
	activityFilterColumns = map[string]bool{
		"session_id": true,
		"type":       true,
	}
	activityOrderColumns = map[string]bool{
		"timestamp": true,
	}
)

// whereClause translates filter conditions into a WHERE fragment. Keys are
// sorted so argument order is deterministic.
func whereClause(filter store.Filter, allowed map[string]bool) (string, []any, error) {
	if len(filter.Where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter.Where))
	for k := range filter.Where {
		if !allowed[k] {
			return "", nil, store.NewValidationError(k, "unknown filter field")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("%s = ?", k))
		args = append(args, filter.Where[k])
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// orderClause translates filter ordering into an ORDER BY fragment,
// falling back to fallbackCol when the requested column is not orderable.
// tiebreak keeps pagination stable for rows sharing the ordered value.
func orderClause(filter store.Filter, allowed map[string]bool, fallbackCol, tiebreak string) string {
	col := filter.OrderBy
	if !allowed[col] {
		col = fallbackCol
	}

	dir := "ASC"
	if filter.OrderDesc {
		dir = "DESC"
	}

	clause := fmt.Sprintf(" ORDER BY %s %s", col, dir)
	if tiebreak != "" {
		clause += fmt.Sprintf(", %s %s", tiebreak, dir)
	}
	return clause
}

// limitClause translates limit and offset. A zero limit means unbounded.
func limitClause(filter store.Filter) string {
	if filter.Limit <= 0 {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", filter.Limit)
	if filter.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return clause
}
