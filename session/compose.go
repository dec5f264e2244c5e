package session

import (
	"fmt"
	"strings"

	"github.com/wansanai/ParquetGrip/core"
)

// Page sizing bounds. MaxPageSize is a hard safety cap on rows fetched
// per page.
const (
	DefaultPageSize = 1000
	MaxPageSize     = 50000
)

// Compose builds the effective statement for one page: all columns from
// the relation, optionally constrained and ordered by the raw user
// fragments, bounded by the page window.
//
// The checks here are syntactic only. Semantic validity (column names,
// type compatibility) is left to the engine so its own error text reaches
// the user verbatim. A malformed filter is reported before a malformed
// sort.
func Compose(relation, filterText, sortText string, pageIndex, pageSize int) (string, error) {
	if relation == "" {
		return "", fmt.Errorf("%w: no relation bound", core.ErrQuery)
	}
	if pageIndex < 0 {
		return "", fmt.Errorf("%w: negative page index", core.ErrQuery)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filterText = strings.TrimSpace(filterText)
	sortText = strings.TrimSpace(sortText)

	if err := checkFragment(filterText); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidFilter, err)
	}
	if err := checkFragment(sortText); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidSort, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", relation)
	if filterText != "" {
		fmt.Fprintf(&b, " WHERE %s", filterText)
	}
	if sortText != "" {
		fmt.Fprintf(&b, " ORDER BY %s", sortText)
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", pageSize, pageIndex*pageSize)
	return b.String(), nil
}

// checkFragment rejects fragments that cannot be spliced into a larger
// statement: unbalanced quoting and statement terminators. Empty
// fragments mean "no constraint" and are fine.
func checkFragment(fragment string) error {
	if fragment == "" {
		return nil
	}

	var inSingle, inDouble bool
	for _, r := range fragment {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case r == ';' && !inSingle && !inDouble:
			return fmt.Errorf("fragment must not contain a statement terminator")
		}
	}
	if inSingle {
		return fmt.Errorf("unbalanced single quote")
	}
	if inDouble {
		return fmt.Errorf("unbalanced double quote")
	}
	return nil
}
