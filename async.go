package cloudbackend

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

// RegistrationSource supplies the push registration id attached to
// subscribing queries. *push.Registrar implements it.
type RegistrationSource interface {
	RegistrationID(ctx context.Context) (string, error)
}

type Option func(a *Async)

// WithExecutor sets where handlers run. The default is InlineExecutor.
func WithExecutor(e Executor) Option {
	return func(a *Async) {
		a.executor = e
	}
}

// WithRegistration sets the push registration used by continuous queries.
// Without one, subscribing queries are sent without a registration id.
func WithRegistration(r RegistrationSource) Option {
	return func(a *Async) {
		a.registration = r
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Async) {
		a.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Async) {
		a.metrics = m
	}
}

// WithWorkers bounds the number of calls in flight.
func WithWorkers(n int) Option {
	return func(a *Async) {
		if n > 0 {
			a.workers = n
		}
	}
}

// Async runs Backend calls in the background and owns the continuous query
// registry. Every method returns immediately; results arrive through the
// returned Future and the optional Handler.
type Async struct {
	backend      *Backend
	registration RegistrationSource
	queries      *ContinuousQueries
	executor     Executor
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	workers      int

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

func NewAsync(backend *Backend, opts ...Option) *Async {
	a := &Async{
		backend:  backend,
		queries:  NewContinuousQueries(),
		executor: InlineExecutor{},
		logger:   zerolog.Nop(),
		workers:  constants.DefaultWorkers,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sem = semaphore.NewWeighted(int64(a.workers))
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a
}

// Backend returns the synchronous client the calls run on.
func (a *Async) Backend() *Backend {
	return a.backend
}

// ContinuousQueries returns the registry of subscribing queries.
func (a *Async) ContinuousQueries() *ContinuousQueries {
	return a.queries
}

// Close stops accepting calls, cancels the calls in flight and waits for
// their handlers to return. It does not close the Backend.
func (a *Async) Close() {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return
	}
	a.closed = true
	a.closeMu.Unlock()

	a.cancel()
	a.wg.Wait()
}

func (a *Async) isClosed() bool {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	return a.closed
}

// submit runs call on the worker pool. The handler, if any, runs on the
// executor before the future completes.
func submit[T any](a *Async, op string, handler Handler[T], call func(ctx context.Context) (T, error)) (*Future[T], error) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return nil, constants.ErrClosed
	}

	f := newFuture[T]()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		var (
			result T
			err    error
		)
		if err = a.sem.Acquire(a.ctx, 1); err == nil {
			result, err = call(a.ctx)
			a.sem.Release(1)
		}
		if err != nil {
			a.metrics.CallFailed(op)
		}
		deliver(a, op, handler, f, result, err)
	}()
	return f, nil
}

// deliver hands the outcome to the handler on the executor, then completes
// the future. With InlineExecutor the handler has returned by the time the
// future completes.
func deliver[T any](a *Async, op string, handler Handler[T], f *Future[T], result T, err error) {
	if handler != nil {
		a.executor.Execute(func() {
			if err != nil {
				handler.OnError(err)
				return
			}
			handler.OnComplete(result)
		})
	} else if err != nil {
		a.logger.Debug().Err(err).Str("op", op).Msg("call failed without handler")
	}
	f.complete(result, err)
}

func (a *Async) Insert(e *models.Entity, handler Handler[*models.Entity]) (*Future[*models.Entity], error) {
	if e == nil {
		return nil, constants.ErrNilEntity
	}
	e = e.Clone()
	return submit(a, "insert", handler, func(ctx context.Context) (*models.Entity, error) {
		return a.backend.Insert(ctx, e)
	})
}

func (a *Async) Update(e *models.Entity, handler Handler[*models.Entity]) (*Future[*models.Entity], error) {
	if e == nil {
		return nil, constants.ErrNilEntity
	}
	e = e.Clone()
	return submit(a, "update", handler, func(ctx context.Context) (*models.Entity, error) {
		return a.backend.Update(ctx, e)
	})
}

func (a *Async) Get(kind, id string, handler Handler[*models.Entity]) (*Future[*models.Entity], error) {
	return submit(a, "get", handler, func(ctx context.Context) (*models.Entity, error) {
		return a.backend.Get(ctx, kind, id)
	})
}

func (a *Async) Delete(kind, id string, handler Handler[struct{}]) (*Future[struct{}], error) {
	return submit(a, "delete", handler, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.backend.Delete(ctx, kind, id)
	})
}

func (a *Async) DeleteEntity(e *models.Entity, handler Handler[struct{}]) (*Future[struct{}], error) {
	if e == nil {
		return nil, constants.ErrNilEntity
	}
	e = e.Clone()
	return submit(a, "delete", handler, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.backend.DeleteEntity(ctx, e)
	})
}

func (a *Async) InsertAll(entities []*models.Entity, handler Handler[[]*models.Entity]) (*Future[[]*models.Entity], error) {
	entities, err := cloneAll(entities)
	if err != nil {
		return nil, err
	}
	return submit(a, "insertAll", handler, func(ctx context.Context) ([]*models.Entity, error) {
		return a.backend.InsertAll(ctx, entities)
	})
}

func (a *Async) UpdateAll(entities []*models.Entity, handler Handler[[]*models.Entity]) (*Future[[]*models.Entity], error) {
	entities, err := cloneAll(entities)
	if err != nil {
		return nil, err
	}
	return submit(a, "updateAll", handler, func(ctx context.Context) ([]*models.Entity, error) {
		return a.backend.UpdateAll(ctx, entities)
	})
}

func (a *Async) GetAll(kind string, ids []string, handler Handler[[]*models.Entity]) (*Future[[]*models.Entity], error) {
	ids = append([]string(nil), ids...)
	return submit(a, "getAll", handler, func(ctx context.Context) ([]*models.Entity, error) {
		return a.backend.GetAll(ctx, kind, ids)
	})
}

func (a *Async) DeleteAll(kind string, ids []string, handler Handler[struct{}]) (*Future[struct{}], error) {
	ids = append([]string(nil), ids...)
	return submit(a, "deleteAll", handler, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.backend.DeleteAll(ctx, kind, ids)
	})
}

// List runs q in the background. When q subscribes to future writes it is
// registered as a continuous query before the call is made, so a push that
// beats the first response still finds it. A subscribing query without a
// subscription duration gets constants.DefaultSubscriptionDuration.
func (a *Async) List(q *models.Query, handler Handler[[]*models.Entity]) (*Future[[]*models.Entity], error) {
	if q == nil {
		return nil, constants.ErrNilQuery
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if a.isClosed() {
		return nil, constants.ErrClosed
	}

	q = q.Clone()
	credential := a.backend.Credential()
	if q.Scope.IncludesFuture() {
		if q.SubscriptionDuration == 0 {
			q.SubscriptionDuration = constants.DefaultSubscriptionDuration
		}
		replaced := a.queries.Put(&ContinuousQuery{Query: q, Handler: handler, Credential: credential})
		a.metrics.SetContinuousQueries(a.queries.Len())
		a.logger.Debug().Str("queryId", q.ID()).Bool("replaced", replaced).Msg("continuous query registered")
	}

	return submit(a, "list", handler, func(ctx context.Context) ([]*models.Entity, error) {
		return a.list(connection.WithCredential(ctx, credential), q)
	})
}

// ListByKind lists every entity of kind, without a filter.
func (a *Async) ListByKind(kind, sortProperty string, order models.Order, limit int, scope models.Scope, handler Handler[[]*models.Entity]) (*Future[[]*models.Entity], error) {
	q := models.NewQuery(kind).SetLimit(limit).SetScope(scope)
	if sortProperty != "" {
		q.SetSort(sortProperty, order)
	}
	return a.List(q, handler)
}

func (a *Async) list(ctx context.Context, q *models.Query) ([]*models.Entity, error) {
	var regID string
	if q.Scope.IncludesFuture() && a.registration != nil {
		var err error
		if regID, err = a.registration.RegistrationID(ctx); err != nil {
			return nil, err
		}
	}
	return a.backend.list(ctx, q, regID)
}

// HandleQueryMessage re-executes the continuous query registered under
// queryID and delivers the result to its handler. Messages for unknown ids
// are dropped: the query was unregistered or never existed here.
func (a *Async) HandleQueryMessage(queryID string) {
	cq, ok := a.queries.Get(queryID)
	if !ok {
		a.logger.Debug().Str("queryId", queryID).Msg("push for unknown query dropped")
		a.metrics.PushDropped(metrics.ReasonUnknownQuery)
		return
	}

	_, err := submit(a, "list", cq.Handler, func(ctx context.Context) ([]*models.Entity, error) {
		return a.list(connection.WithCredential(ctx, cq.Credential), cq.Query)
	})
	if err != nil {
		a.logger.Debug().Err(err).Str("queryId", queryID).Msg("push dropped")
		a.metrics.PushDropped(metrics.ReasonClosed)
		return
	}
	a.metrics.Reexecuted()
}

// Resubscribe executes every registered continuous query again, so the
// backend subscribes them under the current registration id. Call it after
// the push registration was replaced.
func (a *Async) Resubscribe() {
	ids := a.queries.IDs()
	a.logger.Info().Int("count", len(ids)).Msg("resubscribing continuous queries")
	for _, id := range ids {
		a.HandleQueryMessage(id)
	}
}

// Unregister removes the continuous query registered under queryID. A call
// already in flight for it still completes.
func (a *Async) Unregister(queryID string) bool {
	removed := a.queries.Remove(queryID)
	a.metrics.SetContinuousQueries(a.queries.Len())
	return removed
}

// replaceQuery swaps the query of a registered continuous query, leaving it
// unregistered if it was removed meanwhile.
func (a *Async) replaceQuery(q *models.Query) bool {
	return a.queries.Replace(q.ID(), q)
}

func cloneAll(entities []*models.Entity) ([]*models.Entity, error) {
	out := make([]*models.Entity, len(entities))
	for i, e := range entities {
		if e == nil {
			return nil, constants.ErrNilEntity
		}
		out[i] = e.Clone()
	}
	return out, nil
}
