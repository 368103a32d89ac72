// Package fakebackend provides an in-memory mobile backend for tests and the
// sample application. Store implements connection.Connection in process;
// Server exposes the same store over the REST endpoint and a websocket push
// endpoint.
//
// Subscribing queries behave like the real backend: a list with a FUTURE
// scope and a registration id keeps a subscription alive for the requested
// duration, and every later write matching it pushes a query token to that
// registration id.
//
// To exercise failure handling, failures can be injected per operation with
// InjectFailure.
package fakebackend

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/mobilebackend/cloudbackend.go/pkg/push"
)

// Operation names used by InjectFailure.
const (
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpGet       = "get"
	OpDelete    = "delete"
	OpList      = "list"
	OpInsertAll = "insertAll"
	OpUpdateAll = "updateAll"
	OpGetAll    = "getAll"
	OpDeleteAll = "deleteAll"
)

// FailureConfig makes the next Times calls of Op fail with Code, after
// Delay.
type FailureConfig struct {
	Op    string
	Code  int
	Times int
	Delay time.Duration
}

// Pusher delivers push tokens to one registered device.
type Pusher interface {
	Push(token string)
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(token string)

func (f PusherFunc) Push(token string) { f(token) }

type subscription struct {
	regID   string
	query   *models.Query
	since   time.Time
	expires time.Time
}

type Store struct {
	mu       sync.Mutex
	entities map[string]map[string]*models.Entity
	subs     map[string]*subscription
	pushers  map[string]Pusher
	failures []FailureConfig
	last     time.Time
	logger   zerolog.Logger

	// Now is the clock used for timestamps and subscription expiry.
	Now func() time.Time
}

var _ connection.Connection = (*Store)(nil)

func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		entities: make(map[string]map[string]*models.Entity),
		subs:     make(map[string]*subscription),
		pushers:  make(map[string]Pusher),
		logger:   logger,
		Now:      time.Now,
	}
}

// RegisterDevice makes pushes for regID go to p.
func (s *Store) RegisterDevice(regID string, p Pusher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushers[regID] = p
}

// UnregisterDevice stops pushes for regID and drops its subscriptions.
func (s *Store) UnregisterDevice(regID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pushers, regID)
	for key, sub := range s.subs {
		if sub.regID == regID {
			delete(s.subs, key)
		}
	}
}

// NewRegistrationID returns a fresh device registration id.
func NewRegistrationID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire()
	return len(s.subs)
}

// Count returns the number of stored entities of kind.
func (s *Store) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities[kind])
}

func (s *Store) InjectFailure(f FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

func (s *Store) fail(ctx context.Context, op string) error {
	s.mu.Lock()
	var failure *FailureConfig
	for i := range s.failures {
		f := &s.failures[i]
		if f.Op == op && f.Times > 0 {
			f.Times--
			c := *f
			failure = &c
			break
		}
	}
	s.mu.Unlock()

	if failure == nil {
		return nil
	}
	if failure.Delay > 0 {
		select {
		case <-time.After(failure.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure.Code == 0 {
		return nil
	}
	return &connection.RPCError{Code: failure.Code, Message: http.StatusText(failure.Code), Description: "injected failure"}
}

func notFound(kind, id string) error {
	return &connection.RPCError{
		Code:        http.StatusNotFound,
		Message:     http.StatusText(http.StatusNotFound),
		Description: fmt.Sprintf("entity %s/%s not found", kind, id),
	}
}

func badRequest(format string, args ...any) error {
	return &connection.RPCError{
		Code:        http.StatusBadRequest,
		Message:     http.StatusText(http.StatusBadRequest),
		Description: fmt.Sprintf(format, args...),
	}
}

// tick returns a timestamp strictly after every one handed out before.
func (s *Store) tick() time.Time {
	now := s.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *Store) expire() {
	now := s.Now()
	for key, sub := range s.subs {
		if now.After(sub.expires) {
			delete(s.subs, key)
		}
	}
}

func (s *Store) Insert(ctx context.Context, dto *models.EntityDto) (*models.EntityDto, error) {
	if err := s.fail(ctx, OpInsert); err != nil {
		return nil, err
	}
	out, pushes, err := s.insert(ctx, dto)
	if err != nil {
		return nil, err
	}
	s.push(pushes)
	return out, nil
}

func (s *Store) insert(ctx context.Context, dto *models.EntityDto) (*models.EntityDto, []pushTarget, error) {
	if dto == nil || dto.KindName == "" {
		return nil, nil, badRequest("entity without kind")
	}
	user, _ := connection.CredentialFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := models.EntityFromDto(dto)
	e.ID = uuid.Must(uuid.NewV4()).String()
	e.CreatedAt = s.tick()
	e.UpdatedAt = e.CreatedAt
	e.CreatedBy = user
	e.UpdatedBy = user
	if e.Owner == "" {
		e.Owner = user
	}

	kind := s.entities[e.Kind]
	if kind == nil {
		kind = make(map[string]*models.Entity)
		s.entities[e.Kind] = kind
	}
	kind[e.ID] = e
	s.logger.Debug().Str("kind", e.Kind).Str("id", e.ID).Msg("inserted")
	return e.ToDto(), s.matching(e), nil
}

func (s *Store) Update(ctx context.Context, dto *models.EntityDto) (*models.EntityDto, error) {
	if err := s.fail(ctx, OpUpdate); err != nil {
		return nil, err
	}
	out, pushes, err := s.update(ctx, dto)
	if err != nil {
		return nil, err
	}
	s.push(pushes)
	return out, nil
}

func (s *Store) update(ctx context.Context, dto *models.EntityDto) (*models.EntityDto, []pushTarget, error) {
	if dto == nil || dto.KindName == "" || dto.ID == "" {
		return nil, nil, badRequest("update needs kind and id")
	}
	user, _ := connection.CredentialFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entities[dto.KindName][dto.ID]
	if !ok {
		return nil, nil, notFound(dto.KindName, dto.ID)
	}
	e := models.EntityFromDto(dto)
	e.CreatedAt = old.CreatedAt
	e.CreatedBy = old.CreatedBy
	e.Owner = old.Owner
	e.UpdatedAt = s.tick()
	e.UpdatedBy = user
	s.entities[e.Kind][e.ID] = e
	return e.ToDto(), s.matching(e), nil
}

func (s *Store) Get(ctx context.Context, kind, id string) (*models.EntityDto, error) {
	if err := s.fail(ctx, OpGet); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[kind][id]
	if !ok {
		return nil, notFound(kind, id)
	}
	return e.ToDto(), nil
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	if err := s.fail(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[kind][id]; !ok {
		return notFound(kind, id)
	}
	delete(s.entities[kind], id)
	return nil
}

// List runs the query. A subscribing scope with a registration id creates
// or refreshes the subscription of (regId, queryId); FUTURE then returns
// only entities created after the subscription started.
func (s *Store) List(ctx context.Context, dto *models.QueryDto) (*models.EntityListDto, error) {
	if err := s.fail(ctx, OpList); err != nil {
		return nil, err
	}
	q, err := models.QueryFromDto(dto)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	if err := q.Validate(); err != nil {
		return nil, badRequest("%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire()

	now := s.Now().UTC()
	since := now
	// Entities written from here on must sort strictly after since.
	if now.After(s.last) {
		s.last = now
	}
	if q.Scope.IncludesFuture() && dto.RegID != "" {
		key := dto.RegID + "|" + q.ID()
		sub, ok := s.subs[key]
		if !ok {
			sub = &subscription{regID: dto.RegID, since: now}
			s.subs[key] = sub
		}
		sub.query = q
		sub.expires = now.Add(q.SubscriptionDuration)
		since = sub.since
	}

	var out []*models.Entity
	for _, e := range s.entities[q.KindName] {
		if q.Scope == models.ScopeFuture && !e.CreatedAt.After(since) {
			continue
		}
		if models.Matches(q.Filter, e) {
			out = append(out, e)
		}
	}
	sortEntities(out, q.Sort)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return models.EntityListToDto(out), nil
}

func (s *Store) InsertAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error) {
	if err := s.fail(ctx, OpInsertAll); err != nil {
		return nil, err
	}
	out := &models.EntityListDto{Entries: []*models.EntityDto{}}
	var pushes []pushTarget
	for _, dto := range entries(list) {
		e, p, err := s.insert(ctx, dto)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, e)
		pushes = append(pushes, p...)
	}
	s.push(pushes)
	return out, nil
}

func (s *Store) UpdateAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error) {
	if err := s.fail(ctx, OpUpdateAll); err != nil {
		return nil, err
	}
	out := &models.EntityListDto{Entries: []*models.EntityDto{}}
	var pushes []pushTarget
	for _, dto := range entries(list) {
		e, p, err := s.update(ctx, dto)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, e)
		pushes = append(pushes, p...)
	}
	s.push(pushes)
	return out, nil
}

// GetAll skips ids that do not exist, keeping the order of the others.
func (s *Store) GetAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error) {
	if err := s.fail(ctx, OpGetAll); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &models.EntityListDto{Entries: []*models.EntityDto{}}
	for _, dto := range entries(list) {
		if e, ok := s.entities[dto.KindName][dto.ID]; ok {
			out.Entries = append(out.Entries, e.ToDto())
		}
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, list *models.EntityListDto) error {
	if err := s.fail(ctx, OpDeleteAll); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dto := range entries(list) {
		delete(s.entities[dto.KindName], dto.ID)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return nil
}

type pushTarget struct {
	pusher Pusher
	token  string
}

// matching collects the pushes a write of e triggers. Callers hold s.mu.
func (s *Store) matching(e *models.Entity) []pushTarget {
	s.expire()
	var out []pushTarget
	for _, sub := range s.subs {
		if sub.query.KindName != e.Kind || !models.Matches(sub.query.Filter, e) {
			continue
		}
		p, ok := s.pushers[sub.regID]
		if !ok {
			continue
		}
		token, err := push.EncodeToken(push.Token{RegistrationID: sub.regID, TypeID: push.TypeQuery, Payload: sub.query.ID()})
		if err != nil {
			s.logger.Error().Err(err).Str("regId", sub.regID).Msg("push token")
			continue
		}
		out = append(out, pushTarget{pusher: p, token: token})
	}
	return out
}

// push runs outside s.mu so pushers may call back into the store.
func (s *Store) push(targets []pushTarget) {
	for _, t := range targets {
		s.logger.Debug().Str("token", t.token).Msg("push")
		t.pusher.Push(t.token)
	}
}

func entries(list *models.EntityListDto) []*models.EntityDto {
	if list == nil {
		return nil
	}
	out := make([]*models.EntityDto, 0, len(list.Entries))
	for _, e := range list.Entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// sortEntities orders by sort, breaking ties by creation time.
func sortEntities(list []*models.Entity, sort *models.Sort) {
	slices.SortFunc(list, func(a, b *models.Entity) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if sort == nil {
		return
	}
	slices.SortStableFunc(list, func(a, b *models.Entity) int {
		av, _ := a.Lookup(sort.Property)
		bv, _ := b.Lookup(sort.Property)
		c, ok := models.Compare(av, bv)
		if !ok {
			return 0
		}
		if sort.Order == models.OrderDesc {
			return -c
		}
		return c
	})
}
