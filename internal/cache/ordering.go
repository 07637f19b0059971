package cache

import (
	"slices"
)

// OrderActiveDiscussions: сначала закреплённые в порядке списка pinned,
// затем остальные по lastUpdatedAt, новые сверху.
func OrderActiveDiscussions(ds []*Discussion, pinned []string) []*Discussion {
	rank := make(map[string]int, len(pinned))
	for i, id := range pinned {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	out := slices.Clone(ds)
	slices.SortStableFunc(out, func(a, b *Discussion) int {
		ra, pa := rank[a.ID]
		rb, pb := rank[b.ID]
		switch {
		case pa && pb:
			return ra - rb
		case pa:
			return -1
		case pb:
			return 1
		}
		return b.LastUpdatedAt.Compare(a.LastUpdatedAt)
	})
	return out
}

// OrderArchivedDiscussions: только по lastUpdatedAt, закрепление не учитывается.
func OrderArchivedDiscussions(ds []*Discussion) []*Discussion {
	out := slices.Clone(ds)
	slices.SortStableFunc(out, func(a, b *Discussion) int {
		return b.LastUpdatedAt.Compare(a.LastUpdatedAt)
	})
	return out
}

// OrderChats: ChatOrderInsertion сохраняет порядок коллекции,
// ChatOrderRecency сортирует по lastUpdatedAt, новые сверху.
func OrderChats(cs []*Chat, order ChatOrder) []*Chat {
	out := slices.Clone(cs)
	if order != ChatOrderRecency {
		return out
	}
	slices.SortStableFunc(out, func(a, b *Chat) int {
		return b.LastUpdatedAt.Compare(a.LastUpdatedAt)
	})
	return out
}
