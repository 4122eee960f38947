package common

import "sort"

// IDSet is the data structure for a set of IDs
type IDSet map[ID]struct{}

// Add adds an ID to IDSet
func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

// Del removes an ID from IDSet
func (s IDSet) Del(id ID) {
	delete(s, id)
}

// Contains checks if ID is in IDSet
func (s IDSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// ToList converts IDSet to a sorted slice of IDs
func (s IDSet) ToList() []ID {
	list := make([]ID, 0, len(s))
	for id := range s {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i] < list[j]
	})
	return list
}

// ForEach iterates the set until cb returns false
func (s IDSet) ForEach(cb func(id ID) bool) {
	for id := range s {
		if !cb(id) {
			break
		}
	}
}

// StringSet is a set of strings
type StringSet map[string]struct{}

// Contains checks if Stringset contains the string
func (ss StringSet) Contains(elem string) bool {
	_, ok := ss[elem]
	return ok
}

// Add adds the string to StringSet
func (ss StringSet) Add(elem string) {
	ss[elem] = struct{}{}
}

// Remove removes the string from StringSet
func (ss StringSet) Remove(elem string) {
	delete(ss, elem)
}
