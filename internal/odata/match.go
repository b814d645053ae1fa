package odata

import "strings"

// dissimilarity scores how different a query is from a candidate string,
// normalized to [0,1] where 0 means identical and 1 means no relation.
// Comparison is case-insensitive. Substring containment is scored by length
// ratio; everything else falls back to normalized edit distance.
func dissimilarity(query, candidate string) float64 {
	a := strings.ToLower(strings.TrimSpace(query))
	b := strings.ToLower(candidate)
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	if a == b {
		return 0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return 1 - float64(shorter)/float64(longer)
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return float64(levenshtein(a, b)) / float64(maxLen)
}

// levenshtein returns the edit distance between two strings, computed over
// bytes with a two-row dynamic programming table.
func levenshtein(a, b string) int {
	m, n := len(a), len(b)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
