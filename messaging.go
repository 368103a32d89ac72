package cloudbackend

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/mobilebackend/cloudbackend.go/pkg/watermark"
)

// Messaging is topic pub/sub on top of continuous queries. A message is an
// entity of kind _CloudMessages with a topicId property. Each topic keeps a
// watermark, the creation time of the newest message delivered, so a
// subscriber that comes back later can replay what it missed.
//
// The watermark is persisted before the handler runs. A crash in between
// loses that batch rather than delivering it twice.
type Messaging struct {
	async   *Async
	store   watermark.Store
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// mu guards handlers and serializes watermark advances with the registry
	// updates that follow them.
	mu       sync.Mutex
	handlers map[string]Handler[[]*models.Entity]

	now func() time.Time
}

func NewMessaging(async *Async, store watermark.Store, logger zerolog.Logger, m *metrics.Metrics) *Messaging {
	return &Messaging{
		async:    async,
		store:    store,
		logger:   logger,
		metrics:  m,
		handlers: make(map[string]Handler[[]*models.Entity]),
		now:      time.Now,
	}
}

// CreateMessage returns an unsent message for topicID.
func CreateMessage(topicID string) *models.Entity {
	return models.NewEntity(constants.KindCloudMessages).Put(constants.PropTopicID, topicID)
}

// CreateBroadcastMessage returns an unsent message for every subscriber of
// the broadcast topic.
func CreateBroadcastMessage() *models.Entity {
	return CreateMessage(constants.TopicIDBroadcast)
}

func (m *Messaging) CreateMessage(topicID string) *models.Entity {
	return CreateMessage(topicID)
}

func (m *Messaging) CreateBroadcastMessage() *models.Entity {
	return CreateBroadcastMessage()
}

// Send inserts msg. handler may be nil.
func (m *Messaging) Send(msg *models.Entity, handler Handler[*models.Entity]) (*Future[*models.Entity], error) {
	if msg == nil {
		return nil, constants.ErrNilEntity
	}
	if msg.GetString(constants.PropTopicID) == "" {
		return nil, constants.ErrEmptyTopicID
	}
	return m.async.Insert(msg, handler)
}

// Subscribe delivers the messages of topicID to handler, oldest first.
//
// With no maxOfflineMessages (or 0) only messages sent from now on are
// delivered. With maxOfflineMessages > 0 up to that many messages sent
// since the last delivery are replayed first. Subscribing again to the same
// topic replaces the previous subscription and its handler.
//
// The returned future completes with the initial batch, before duplicate
// suppression and reordering.
func (m *Messaging) Subscribe(topicID string, handler Handler[[]*models.Entity], maxOfflineMessages ...int) (*Future[[]*models.Entity], error) {
	if topicID == "" {
		return nil, constants.ErrEmptyTopicID
	}
	if handler == nil {
		return nil, constants.ErrNilHandler
	}

	offline := 0
	if len(maxOfflineMessages) > 0 && maxOfflineMessages[0] > 0 {
		offline = maxOfflineMessages[0]
	}

	since := m.now()
	scope := models.ScopeFuture
	limit := constants.DefaultMaxMessagesToReceive
	if offline > 0 {
		scope = models.ScopeFutureAndPast
		limit = offline
		stored, ok, err := m.store.Get(topicID)
		if err != nil {
			return nil, err
		}
		if ok {
			since = stored
		}
	}

	m.mu.Lock()
	prev, hadPrev := m.handlers[topicID]
	m.handlers[topicID] = handler
	m.mu.Unlock()

	m.logger.Debug().Str("topicId", topicID).Time("since", since).Str("scope", string(scope)).Int("limit", limit).Msg("subscribe")
	f, err := m.async.List(topicQuery(topicID, since, scope, limit), m.batchHandler(topicID))
	if err != nil {
		m.mu.Lock()
		if hadPrev {
			m.handlers[topicID] = prev
		} else {
			delete(m.handlers, topicID)
		}
		m.mu.Unlock()
		return nil, err
	}
	return f, nil
}

// Unsubscribe stops deliveries for topicID. The watermark is kept so a later
// Subscribe with offline messages resumes where this one stopped. A query
// already in flight still completes but is not delivered.
func (m *Messaging) Unsubscribe(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topicID)
	m.async.Unregister(topicID)
	m.logger.Debug().Str("topicId", topicID).Msg("unsubscribe")
}

// Topics returns the subscribed topics in sorted order.
func (m *Messaging) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// Watermark returns the creation time of the newest message delivered for
// topicID.
func (m *Messaging) Watermark(topicID string) (time.Time, bool, error) {
	return m.store.Get(topicID)
}

func (m *Messaging) batchHandler(topicID string) Handler[[]*models.Entity] {
	return HandlerFuncs[[]*models.Entity]{
		Complete: func(batch []*models.Entity) {
			m.deliver(topicID, batch)
		},
		Error: func(err error) {
			m.mu.Lock()
			handler, ok := m.handlers[topicID]
			m.mu.Unlock()
			if ok {
				handler.OnError(err)
			}
		},
	}
}

func (m *Messaging) deliver(topicID string, batch []*models.Entity) {
	if len(batch) == 0 {
		return
	}

	fresh, handler, err := m.advance(topicID, batch)
	if handler == nil {
		return
	}
	if err != nil {
		handler.OnError(err)
		return
	}
	if len(fresh) == 0 {
		return
	}

	slices.SortStableFunc(fresh, func(a, b *models.Entity) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	m.metrics.Delivered(len(fresh))
	handler.OnComplete(fresh)
}

// advance persists the newest creation time of batch as the topic watermark
// and moves the topic's continuous query past it. It returns the entities
// newer than the previous watermark; older ones were already delivered by a
// concurrent execution of the same query.
func (m *Messaging) advance(topicID string, batch []*models.Entity) ([]*models.Entity, Handler[[]*models.Entity], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handler, ok := m.handlers[topicID]
	if !ok {
		m.logger.Debug().Str("topicId", topicID).Int("count", len(batch)).Msg("batch for unsubscribed topic dropped")
		return nil, nil, nil
	}

	newest := batch[0].CreatedAt
	for _, e := range batch[1:] {
		if e.CreatedAt.After(newest) {
			newest = e.CreatedAt
		}
	}

	prev, advanced, err := m.store.Advance(topicID, newest)
	if err != nil {
		m.logger.Error().Err(err).Str("topicId", topicID).Msg("watermark not saved")
		return nil, handler, err
	}
	if advanced {
		m.metrics.WatermarkAdvanced()
		q := topicQuery(topicID, newest, models.ScopeFuture, constants.DefaultMaxMessagesToReceive)
		m.async.replaceQuery(q)
	}

	fresh := make([]*models.Entity, 0, len(batch))
	for _, e := range batch {
		if e.CreatedAt.After(prev) {
			fresh = append(fresh, e)
		}
	}
	return fresh, handler, nil
}

func topicQuery(topicID string, since time.Time, scope models.Scope, limit int) *models.Query {
	return models.NewQuery(constants.KindCloudMessages).
		SetFilter(models.And(
			models.Eq(constants.PropTopicID, topicID),
			models.Gt(models.PropCreatedAt, since.UTC()),
		)).
		SetSort(models.PropCreatedAt, models.OrderDesc).
		SetLimit(limit).
		SetScope(scope).
		SetSubscriptionDuration(constants.SubscriptionDurationForPushMessage).
		SetQueryID(topicID)
}
