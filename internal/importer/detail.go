package importer

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DetailStore keeps recent import reports so their detail file can be
// downloaded after the import request returns.
type DetailStore struct {
	cache *cache.Cache
}

// NewDetailStore creates a store whose entries expire after ttl.
func NewDetailStore(ttl time.Duration) *DetailStore {
	return &DetailStore{cache: cache.New(ttl, 2*ttl)}
}

// Put remembers a report under its batch id.
func (s *DetailStore) Put(report *Report) {
	s.cache.SetDefault(report.BatchID, report)
}

// Get returns the report for a batch id if it has not expired.
func (s *DetailStore) Get(batchID string) (*Report, bool) {
	v, found := s.cache.Get(batchID)
	if !found {
		return nil, false
	}
	return v.(*Report), true
}
