package index

import "sort"

// PageSet is a set of page indexes.
type PageSet map[int]struct{}

func NewPageSet() PageSet {
	return make(PageSet)
}

func (s PageSet) Add(page int) {
	s[page] = struct{}{}
}

func (s PageSet) Remove(page int) {
	delete(s, page)
}

func (s PageSet) Contains(page int) bool {
	_, exists := s[page]
	return exists
}

func (s PageSet) Size() int {
	return len(s)
}

// Sorted returns the pages in ascending order.
func (s PageSet) Sorted() []int {
	result := make([]int, 0, len(s))
	for page := range s {
		result = append(result, page)
	}
	sort.Ints(result)
	return result
}

func Union(sets []PageSet) PageSet {
	result := NewPageSet()
	for _, s := range sets {
		for page := range s {
			result.Add(page)
		}
	}
	return result
}
