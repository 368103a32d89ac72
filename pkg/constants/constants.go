package constants

import "time"

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)

const (
	// RequestIDLength size of the id sent with every endpoint request
	RequestIDLength = 16
	// CloseMessageCode identifies a normal websocket close
	CloseMessageCode = 1000

	DefaultHTTPTimeout         = 30 * time.Second
	DefaultRegistrationTimeout = 30 * time.Second
	// DefaultReconnectInterval is the first delay before registering again
	// after the push connection dropped.
	DefaultReconnectInterval = time.Second
	DefaultWorkers           = 4

	// DefaultSubscriptionDuration keeps a continuous query alive on the backend
	// when the query does not set its own duration.
	DefaultSubscriptionDuration = 24 * time.Hour

	// DefaultMaxElapsedRetry bounds the exponential backoff of a single endpoint call.
	DefaultMaxElapsedRetry = 15 * time.Second
)

// Cloud Message constants shared with the backend.
const (
	KindCloudMessages = "_CloudMessages"
	PropTopicID       = "topicId"
	TopicIDBroadcast  = "_broadcast"

	// SubscriptionDurationForPushMessage keeps a message subscription alive for 7 days.
	SubscriptionDurationForPushMessage = 7 * 24 * time.Hour
	// DefaultMaxMessagesToReceive is the page size of a message query.
	DefaultMaxMessagesToReceive = 100

	WatermarkKeyPrefix = "PREF_KEY_PREFIX_MSG_TIMESTAMP"
)

// Push notification constants.
const (
	PushKeySubID     = "subId"
	PushTypeIDQuery  = "query"
	TokenDelimiter   = ":"
	PushEndpointPath = "/push"
)
