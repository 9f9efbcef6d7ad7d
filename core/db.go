package core

import (
	"strings"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderByClause renders orderings restricted to the allowed columns ({field: column}).
// Unknown fields are dropped; fallback is used when nothing remains.
func OrderByClause(ordering []DBOrdering, allowed map[string]string, fallback string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}
