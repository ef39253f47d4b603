package box

import "container/list"

// recentSet remembers the most recently added keys up to a fixed capacity,
// forgetting the oldest first. It is not safe for concurrent use; each stream
// owns its own.
type recentSet struct {
	size  int
	order *list.List
	index map[string]*list.Element
}

func newRecentSet(size int) *recentSet {
	return &recentSet{
		size:  size,
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Contains reports whether key is remembered. It does not refresh the key.
func (s *recentSet) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Add remembers key as the most recent entry, evicting the oldest one when
// the set is full.
func (s *recentSet) Add(key string) {
	if element, present := s.index[key]; present {
		s.order.MoveToBack(element)
		return
	}
	s.index[key] = s.order.PushBack(key)
	for s.order.Len() > s.size {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}

func (s *recentSet) Len() int {
	return s.order.Len()
}
