package domain

// Similarity returns a normalized similarity in [0,1] between two
// identifiers, comparing their singularized token forms. Exact token
// equality scores 1; otherwise the score is the Levenshtein ratio of the
// joined forms, boosted when one is a whole-token subset of the other.
func Similarity(a, b string) float64 {
	na, nb := SingularName(a), SingularName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ratio := levenshteinRatio(na, nb)
	if tokenSubset(Tokens(na), Tokens(nb)) || tokenSubset(Tokens(nb), Tokens(na)) {
		if ratio < 0.85 {
			ratio = 0.85
		}
	}
	return ratio
}

func tokenSubset(small, big []string) bool {
	if len(small) == 0 || len(small) >= len(big) {
		return false
	}
	set := make(map[string]struct{}, len(big))
	for _, t := range big {
		set[Singular(t)] = struct{}{}
	}
	for _, t := range small {
		if _, ok := set[Singular(t)]; !ok {
			return false
		}
	}
	return true
}

func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(prev[len(rb)])/float64(longest)
}
