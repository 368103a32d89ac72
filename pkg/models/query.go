package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Scope decides whether a query only reads what is stored now (PAST), only
// subscribes to matching writes from now on (FUTURE), or both.
type Scope string

const (
	ScopePast          Scope = "PAST"
	ScopeFuture        Scope = "FUTURE"
	ScopeFutureAndPast Scope = "FUTURE_AND_PAST"
)

// IncludesFuture reports whether the query keeps a server-side subscription.
func (s Scope) IncludesFuture() bool {
	return s == ScopeFuture || s == ScopeFutureAndPast
}

// IncludesPast reports whether the query returns already stored entities.
func (s Scope) IncludesPast() bool {
	return s == "" || s == ScopePast || s == ScopeFutureAndPast
}

type Order string

const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

type Sort struct {
	Property string
	Order    Order
}

// Query describes a list call. A zero Limit leaves the page size to the
// backend and an empty Scope means PAST.
type Query struct {
	KindName             string
	Filter               Filter
	Sort                 *Sort
	Limit                int
	Scope                Scope
	SubscriptionDuration time.Duration
	QueryID              string
}

func NewQuery(kind string) *Query {
	return &Query{KindName: kind, Scope: ScopePast}
}

func (q *Query) SetFilter(f Filter) *Query {
	q.Filter = f
	return q
}

func (q *Query) SetSort(property string, order Order) *Query {
	q.Sort = &Sort{Property: property, Order: order}
	return q
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

func (q *Query) SetScope(scope Scope) *Query {
	q.Scope = scope
	return q
}

func (q *Query) SetSubscriptionDuration(d time.Duration) *Query {
	q.SubscriptionDuration = d
	return q
}

func (q *Query) SetQueryID(id string) *Query {
	q.QueryID = id
	return q
}

// ID returns the caller-chosen query id, or DefaultQueryID when none was set.
func (q *Query) ID() string {
	if q.QueryID != "" {
		return q.QueryID
	}
	return DefaultQueryID(q)
}

// DefaultQueryID hashes kind, filter and sort, so two descriptors asking for
// the same data share one subscription.
func DefaultQueryID(q *Query) string {
	var b strings.Builder
	b.WriteString(q.KindName)
	b.WriteByte('|')
	if q.Filter != nil {
		b.WriteString(q.Filter.String())
	}
	b.WriteByte('|')
	if q.Sort != nil {
		b.WriteString(q.Sort.Property)
		b.WriteByte(' ')
		b.WriteString(string(q.Sort.Order))
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// Validate rejects descriptors the backend cannot run.
func (q *Query) Validate() error {
	if q.KindName == "" {
		return fmt.Errorf("query: empty kind name")
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", q.Limit)
	}
	if q.SubscriptionDuration < 0 {
		return fmt.Errorf("query: negative subscription duration %s", q.SubscriptionDuration)
	}
	switch q.Scope {
	case "", ScopePast, ScopeFuture, ScopeFutureAndPast:
	default:
		return fmt.Errorf("query: unknown scope %q", q.Scope)
	}
	if q.Filter != nil {
		if err := Validate(q.Filter); err != nil {
			return err
		}
	}
	return nil
}

func (q *Query) Clone() *Query {
	c := *q
	if q.Sort != nil {
		s := *q.Sort
		c.Sort = &s
	}
	return &c
}

func (q *Query) String() string {
	filter := "<none>"
	if q.Filter != nil {
		filter = q.Filter.String()
	}
	return fmt.Sprintf("Query(kind=%s, id=%s, filter=%s, scope=%s, limit=%d)",
		q.KindName, q.ID(), filter, q.Scope, q.Limit)
}
