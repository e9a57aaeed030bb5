package datastore

import "sync"

// subscriberSet fans newly saved scans out to in-process listeners, the SSE
// stream being the main one. Delivery is best effort: a subscriber that
// stops draining its channel misses scans rather than blocking Save.
type subscriberSet struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ScanRecord
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{subs: make(map[int]chan ScanRecord)}
}

func (s *subscriberSet) add() (<-chan ScanRecord, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan ScanRecord, 16)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *subscriberSet) notify(scan ScanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- scan:
		default:
		}
	}
}
