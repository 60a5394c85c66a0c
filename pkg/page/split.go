package page

// Split returns p unchanged (wrapped in a single-element slice) if its
// encoded length already fits MaxPageBytes, or splits it into 2+ sibling
// pages that each fit. This generalizes the teacher's fixed 1/2/3-way
// nodeSplit3 to an arbitrary number of parts, because chunkstore pages
// are variable length (no fixed BTREE_PAGE_SIZE slot), so a single split
// is not always enough to bring every part under budget.
func Split(p *Page) []*Page {
	if len(p.Encode()) <= MaxPageBytes {
		return []*Page{p}
	}
	if p.NKeys() <= 1 {
		// A single entry can't be split any further; accept it over
		// budget rather than recursing on an unchanged page forever.
		return []*Page{p}
	}

	left, right := splitInHalf(p)
	var out []*Page
	out = append(out, Split(left)...)
	out = append(out, Split(right)...)
	return out
}

// splitInHalf divides p's entries into two pages, filling the left page
// to roughly 3/4 of MaxPageBytes the way the teacher's nodeSplit2 does,
// so inserts into a freshly split page don't immediately re-split.
func splitInHalf(p *Page) (*Page, *Page) {
	target := MaxPageBytes * 3 / 4
	n := p.NKeys()
	nleft := 1
	running := entrySize(p, 0)
	for i := 1; i < n; i++ {
		running += entrySize(p, i)
		nleft = i + 1
		if running >= target {
			break
		}
	}
	if nleft >= n {
		nleft = n - 1
	}
	if nleft < 1 {
		nleft = 1
	}

	left := &Page{MapID: p.MapID, Leaf: p.Leaf}
	right := &Page{MapID: p.MapID, Leaf: p.Leaf}

	left.Keys = append([][]byte{}, p.Keys[:nleft]...)
	right.Keys = append([][]byte{}, p.Keys[nleft:]...)

	if p.Leaf {
		left.Values = append([][]byte{}, p.Values[:nleft]...)
		right.Values = append([][]byte{}, p.Values[nleft:]...)
	} else {
		left.Children = append([]Position{}, p.Children[:nleft]...)
		right.Children = append([]Position{}, p.Children[nleft:]...)
		left.Counts = append([]uint64{}, p.Counts[:nleft]...)
		right.Counts = append([]uint64{}, p.Counts[nleft:]...)
	}

	return left, right
}

func entrySize(p *Page, i int) int {
	n := len(p.Keys[i]) + 10
	if p.Leaf {
		n += len(p.Values[i])
	} else {
		n += 16
	}
	return n
}
