package index

import "sort"

// SortEntries orders entries by similarity score descending, ties broken by
// most-recent version, then document identity, then lowest sequence index.
// Guarantees stable relative ordering within one retrieval call.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Version != entries[j].Version {
			return entries[i].Version > entries[j].Version
		}
		if entries[i].DocumentID != entries[j].DocumentID {
			return entries[i].DocumentID < entries[j].DocumentID
		}
		return entries[i].Seq < entries[j].Seq
	})
}
