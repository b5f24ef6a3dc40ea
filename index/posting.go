package index

import "sort"

// PostingList holds the snapshot positions of the patients recorded under a
// single condition key, in ascending order.
type PostingList []uint32

// Add appends a position, keeping the list sorted. Positions arrive in
// ascending order during a bulk build, so the common case is a plain append.
func (pl PostingList) Add(pos uint32) PostingList {
	if n := len(pl); n == 0 || pl[n-1] < pos {
		return append(pl, pos)
	}
	i := sort.Search(len(pl), func(i int) bool { return pl[i] >= pos })
	if i < len(pl) && pl[i] == pos {
		return pl
	}
	pl = append(pl, 0)
	copy(pl[i+1:], pl[i:])
	pl[i] = pos
	return pl
}

// UnionPostings merges multiple posting lists into a single sorted,
// de-duplicated slice of positions.
func UnionPostings(lists ...PostingList) []uint32 {
	total := 0
	for _, pl := range lists {
		total += len(pl)
	}
	if total == 0 {
		return nil
	}
	merged := make([]uint32, 0, total)
	for _, pl := range lists {
		merged = append(merged, pl...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	out := merged[:1]
	for _, pos := range merged[1:] {
		if pos != out[len(out)-1] {
			out = append(out, pos)
		}
	}
	return out
}
