package promotion

import "sort"

// SortRequests orders requests by the given key, breaking ties by ID so
// paging is stable.
func SortRequests(items []*PullRequest, orderBy OrderBy, descending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := orderBy.SortKey(items[i]), orderBy.SortKey(items[j])
		if ti.Equal(tj) {
			if descending {
				return items[i].ID > items[j].ID
			}
			return items[i].ID < items[j].ID
		}
		if descending {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
}
