package push

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
)

type recordingQueries struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingQueries) HandleQueryMessage(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, queryID)
}

func TestRouterForwardsQueryMessages(t *testing.T) {
	queries := &recordingQueries{}
	r := NewRouter(queries, zerolog.Nop(), nil)

	r.OnPushNotification("reg:query:#cat")
	r.OnPushNotification("reg:query:weird:id")

	assert.Equal(t, []string{"#cat", "weird:id"}, queries.ids)
}

func TestRouterDropsMalformedAndUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	queries := &recordingQueries{}
	r := NewRouter(queries, zerolog.Nop(), m)

	r.OnPushNotification("garbage")
	r.OnPushNotification("reg:chat:hello")
	r.OnPushNotification("reg:query:#dog")

	assert.Equal(t, []string{"#dog"}, queries.ids)

	count, err := testutil.GatherAndCount(reg, "cloudbackend_push_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter(nil, zerolog.Nop(), nil)

	var got []string
	r.Handle("chat", func(payload string) { got = append(got, payload) })

	r.OnPushNotification("reg:query:ignored")
	r.OnPushNotification("reg:chat:hi")
	assert.Equal(t, []string{"hi"}, got)

	r.Handle("chat", nil)
	r.OnPushNotification("reg:chat:again")
	assert.Equal(t, []string{"hi"}, got)
}
