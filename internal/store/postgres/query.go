package postgres

import (
	"fmt"
	"strings"

	"github.com/gitco/alphatrader/internal/domain"
)

// pagedQuery appends time-window and pagination clauses from opts to a base
// SELECT, filtering on timeCol. The base query must carry no placeholders of
// its own.
func pagedQuery(base, timeCol string, opts domain.ListOpts) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(base)

	where := " WHERE"
	if strings.Contains(base, "WHERE") {
		where = " AND"
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		fmt.Fprintf(&sb, "%s %s >= $%d", where, timeCol, len(args))
		where = " AND"
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		fmt.Fprintf(&sb, "%s %s <= $%d", where, timeCol, len(args))
	}

	fmt.Fprintf(&sb, " ORDER BY %s DESC", timeCol)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}
