package stats

import (
	"sort"

	"github.com/verte-zerg/charlm/internal/langmodel"
)

// TopContinuations returns the n most frequent observations of ws, ties
// broken by stored order.
func TopContinuations(ws *langmodel.WindowStatistics, n int) []langmodel.Observation {
	if n <= 0 || ws.Len() == 0 {
		return nil
	}
	items := ws.Observations()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Count > items[j].Count
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
