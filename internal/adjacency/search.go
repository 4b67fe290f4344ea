package adjacency

import (
	"strings"

	"golang.org/x/text/cases"
)

// FindFeature returns the first feature, in collection order, with any search
// term containing query as a case-insensitive substring. There is no ranking
// between multiple matches: the earliest feature wins.
func FindFeature(c Collection, query string) (Feature, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Feature{}, ErrNotFound
	}

	// Casers carry state and are not shared between calls.
	fold := cases.Fold()
	needle := fold.String(q)

	for _, f := range c {
		for _, term := range f.SearchTerms {
			if strings.Contains(fold.String(term), needle) {
				return f, nil
			}
		}
	}
	return Feature{}, ErrNotFound
}
