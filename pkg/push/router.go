package push

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
)

// QueryMessageHandler receives the query id of every "query" notification.
type QueryMessageHandler interface {
	HandleQueryMessage(queryID string)
}

// Receiver is what transports hand decoded notifications to.
type Receiver interface {
	OnPushNotification(token string)
}

// HandlerFunc handles the payload of one notification type.
type HandlerFunc func(payload string)

// Router dispatches push tokens by type id. Tokens it cannot parse and types
// nobody handles are dropped.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

var _ Receiver = (*Router)(nil)

// NewRouter routes TypeQuery to queries. queries may be nil, in which case
// query notifications are dropped until a handler is set with Handle.
func NewRouter(queries QueryMessageHandler, logger zerolog.Logger, m *metrics.Metrics) *Router {
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		metrics:  m,
	}
	if queries != nil {
		r.handlers[TypeQuery] = queries.HandleQueryMessage
	}
	return r
}

// Handle registers fn for typeID, replacing any previous handler. A nil fn
// removes it.
func (r *Router) Handle(typeID string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.handlers, typeID)
		return
	}
	r.handlers[typeID] = fn
}

func (r *Router) OnPushNotification(token string) {
	t, err := DecodeToken(token)
	if err != nil {
		r.logger.Debug().Err(err).Msg("push_dropped")
		r.metrics.PushDropped(metrics.ReasonMalformed)
		return
	}

	r.mu.RLock()
	fn, ok := r.handlers[t.TypeID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug().Str("typeId", t.TypeID).Msg("push_unknown_type")
		r.metrics.PushDropped(metrics.ReasonUnknownType)
		return
	}

	r.metrics.PushReceived(t.TypeID)
	r.logger.Debug().Str("typeId", t.TypeID).Str("payload", t.Payload).Msg("push_received")
	fn(t.Payload)
}
