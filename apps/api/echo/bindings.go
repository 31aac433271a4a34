package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/edapp/edapp/core"
)

const orderingParam = "ordering"

// bindOrdering reads `?ordering=name,-created_at` (the param may repeat).
// Unknown fields are ignored and a field only counts once, at its first position.
func bindOrdering(ctx echo.Context, allowed ...string) []core.DBOrdering {
	var orderings []core.DBOrdering
	seen := make(map[string]bool, len(allowed))

	for _, val := range ctx.QueryParams()[orderingParam] {
		for _, field := range strings.Split(val, ",") {
			field = strings.TrimSpace(field)
			field, descending := strings.TrimPrefix(field, "-"), strings.HasPrefix(field, "-")
			if seen[field] || !core.StringInSlice(field, allowed) {
				continue
			}
			seen[field] = true
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}
