package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductHistoryTables(t *testing.T) {
	require.Equal(t, []string{
		"movements",
		"sales",
		"stock_additions",
		"stock_corrections",
		"damage_reports",
	}, productHistoryTables)

	// movements rows reference stock_additions, stock_corrections, and
	// damage_reports; they must be deleted before any of those.
	idx := map[string]int{}
	for i, table := range productHistoryTables {
		idx[table] = i
	}
	for _, referenced := range []string{"stock_additions", "stock_corrections", "damage_reports"} {
		require.Greater(t, idx[referenced], idx["movements"], referenced)
	}
}
