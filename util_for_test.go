package cloudbackend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/internal/fakebackend"
	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/mobilebackend/cloudbackend.go/pkg/push"
	"github.com/mobilebackend/cloudbackend.go/pkg/watermark"
)

const testRegID = "device-1"

// waitTimeout bounds every wait for an asynchronous delivery in tests.
const waitTimeout = 5 * time.Second

type staticRegistration string

func (r staticRegistration) RegistrationID(context.Context) (string, error) {
	return string(r), nil
}

// recordingConn records the list calls and the credential of every call
// before passing them on.
type recordingConn struct {
	connection.Connection

	mu          sync.Mutex
	lists       []*models.QueryDto
	credentials []string
}

func (c *recordingConn) record(ctx context.Context) {
	cred, _ := connection.CredentialFromContext(ctx)
	c.credentials = append(c.credentials, cred)
}

func (c *recordingConn) List(ctx context.Context, q *models.QueryDto) (*models.EntityListDto, error) {
	c.mu.Lock()
	c.lists = append(c.lists, q)
	c.record(ctx)
	c.mu.Unlock()
	return c.Connection.List(ctx, q)
}

func (c *recordingConn) Insert(ctx context.Context, e *models.EntityDto) (*models.EntityDto, error) {
	c.mu.Lock()
	c.record(ctx)
	c.mu.Unlock()
	return c.Connection.Insert(ctx, e)
}

func (c *recordingConn) lastList() *models.QueryDto {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lists) == 0 {
		return nil
	}
	return c.lists[len(c.lists)-1]
}

func (c *recordingConn) lastCredential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.credentials) == 0 {
		return ""
	}
	return c.credentials[len(c.credentials)-1]
}

// testClient wires the client stack to an in-process fake backend whose
// pushes for testRegID go straight to the router.
type testClient struct {
	store     *fakebackend.Store
	conn      *recordingConn
	backend   *Backend
	async     *Async
	router    *push.Router
	messaging *Messaging
	marks     watermark.Store
	registry  *prometheus.Registry
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	return newTestClientWithStore(t, fakebackend.NewStore(zerolog.Nop()), watermark.NewMemoryStore())
}

func newTestClientWithStore(t *testing.T, store *fakebackend.Store, marks watermark.Store) *testClient {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	conn := &recordingConn{Connection: store}
	backend := NewBackend(conn, zerolog.Nop())
	async := NewAsync(backend,
		WithRegistration(staticRegistration(testRegID)),
		WithMetrics(m),
	)
	router := push.NewRouter(async, zerolog.Nop(), m)
	store.RegisterDevice(testRegID, fakebackend.PusherFunc(router.OnPushNotification))
	t.Cleanup(async.Close)

	return &testClient{
		store:     store,
		conn:      conn,
		backend:   backend,
		async:     async,
		router:    router,
		messaging: NewMessaging(async, marks, zerolog.Nop(), m),
		marks:     marks,
		registry:  reg,
	}
}

// batches collects deliveries of a messaging handler.
type batches struct {
	ch   chan []*models.Entity
	errs chan error
}

func newBatches() *batches {
	return &batches{ch: make(chan []*models.Entity, 16), errs: make(chan error, 16)}
}

func (b *batches) OnComplete(result []*models.Entity) { b.ch <- result }
func (b *batches) OnError(err error)                  { b.errs <- err }

func (b *batches) next(t *testing.T) []*models.Entity {
	t.Helper()
	select {
	case batch := <-b.ch:
		return batch
	case err := <-b.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("no batch delivered")
	}
	return nil
}

func (b *batches) none(t *testing.T) {
	t.Helper()
	select {
	case batch := <-b.ch:
		t.Fatalf("unexpected batch of %d", len(batch))
	case err := <-b.errs:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func await[T any](t *testing.T, f *Future[T], err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	result, err := f.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	return result
}

// metricValue sums the samples of a counter or gauge family.
func metricValue(t *testing.T, c *testClient, name string) float64 {
	t.Helper()
	families, err := c.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return sum
}
