package fedi

import "sort"

// OtherCategory is the bucket for instances whose categorizer returned no
// category.
const OtherCategory = "Other"

// CategoryCount is one named bucket in a Tally.
type CategoryCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Tally holds the result of categorizing a set of instances. Categories are
// ordered by descending count, ties broken by first-encountered category.
// Total always equals the number of instances categorized.
type Tally struct {
	Total      int             `json:"total"`
	Categories []CategoryCount `json:"categories"`
}

// NewTally builds a Tally from per-instance category labels. Empty labels
// are folded into the Other bucket.
func NewTally(labels []string) *Tally {
	counts := make(map[string]int, len(labels))
	order := make([]string, 0, len(labels))

	for _, label := range labels {
		if label == "" {
			label = OtherCategory
		}
		if _, ok := counts[label]; !ok {
			order = append(order, label)
		}
		counts[label]++
	}

	t := &Tally{Total: len(labels), Categories: make([]CategoryCount, 0, len(order))}
	for _, label := range order {
		t.Categories = append(t.Categories, CategoryCount{Label: label, Count: counts[label]})
	}
	sort.SliceStable(t.Categories, func(i, j int) bool {
		return t.Categories[i].Count > t.Categories[j].Count
	})
	return t
}

// Count returns the count for a category label, 0 if absent.
func (t *Tally) Count(label string) int {
	for _, c := range t.Categories {
		if c.Label == label {
			return c.Count
		}
	}
	return 0
}
