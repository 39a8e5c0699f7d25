package memory

import (
	"car-management/core"
)

// score counts, per field, how many of terms occur in the car's title,
// description or tags. Zero means no match.
func score(car *core.Car, terms []string) int {
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}

	n := 0
	count := func(text string) {
		for _, tok := range core.SearchTerms(text) {
			if _, ok := want[tok]; ok {
				n++
			}
		}
	}
	count(car.Title)
	count(car.Description)
	for _, tag := range car.Tags {
		count(tag)
	}
	return n
}
