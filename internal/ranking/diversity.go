package ranking

// lookahead bounds how far Diversify searches past a blocked head for
// a candidate from another category.
const lookahead = 8

// Diversify reorders a ranked slice so no three consecutive entries
// share a primary category. When the head would complete a run of
// three, the first differently-categorized candidate among the next
// positions is promoted; if the whole window shares the category the
// run is allowed rather than starving the feed. Relative order is
// otherwise preserved.
func Diversify(cands []*Candidate) []*Candidate {
	if len(cands) < 3 {
		return cands
	}

	rest := append([]*Candidate(nil), cands...)
	out := make([]*Candidate, 0, len(cands))

	for len(rest) > 0 {
		pick := 0
		if n := len(out); n >= 2 {
			last := out[n-1].Entry.PrimaryCategory()
			if out[n-2].Entry.PrimaryCategory() == last && rest[0].Entry.PrimaryCategory() == last {
				for i := 1; i < len(rest) && i < lookahead; i++ {
					if rest[i].Entry.PrimaryCategory() != last {
						pick = i
						break
					}
				}
			}
		}
		out = append(out, rest[pick])
		rest = append(rest[:pick], rest[pick+1:]...)
	}

	return out
}
