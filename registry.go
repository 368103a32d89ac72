package cloudbackend

import (
	"slices"
	"sync"

	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

// ContinuousQuery is a query kept alive server-side. Every push naming its
// id re-executes Query with Credential and hands the result to Handler.
type ContinuousQuery struct {
	Query      *models.Query
	Handler    Handler[[]*models.Entity]
	Credential string
}

// ContinuousQueries maps query ids to the subscription currently registered
// under them. There is at most one entry per id; entries whose server-side
// subscription lapsed stay until removed and are simply never pushed again.
type ContinuousQueries struct {
	mu      sync.RWMutex
	entries map[string]*ContinuousQuery
}

func NewContinuousQueries() *ContinuousQueries {
	return &ContinuousQueries{entries: make(map[string]*ContinuousQuery)}
}

// Put registers cq under its query id, replacing any previous entry.
func (r *ContinuousQueries) Put(cq *ContinuousQuery) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := cq.Query.ID()
	_, replaced = r.entries[id]
	r.entries[id] = cq
	return replaced
}

// Replace swaps the query of an existing entry, keeping its handler and
// credential. It does nothing when id is not registered.
func (r *ContinuousQueries) Replace(id string, q *models.Query) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.entries[id]
	if !ok {
		return false
	}
	r.entries[id] = &ContinuousQuery{Query: q, Handler: old.Handler, Credential: old.Credential}
	return true
}

func (r *ContinuousQueries) Get(id string) (*ContinuousQuery, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cq, ok := r.entries[id]
	return cq, ok
}

func (r *ContinuousQueries) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

func (r *ContinuousQueries) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered query ids in sorted order.
func (r *ContinuousQueries) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
