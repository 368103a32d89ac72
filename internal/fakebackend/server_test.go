package fakebackend

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	httpconn "github.com/mobilebackend/cloudbackend.go/pkg/connection/http"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/mobilebackend/cloudbackend.go/pkg/push"
)

type ServerTestSuite struct {
	suite.Suite
	store  *Store
	server *Server
	http   *httptest.Server
	conn   *httpconn.Connection
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.store = NewStore(zerolog.Nop())
	s.server = NewServer("127.0.0.1:0", s.store, zerolog.Nop())
	s.http = httptest.NewServer(s.server.Handler())

	u, err := url.Parse(s.http.URL)
	s.Require().NoError(err)
	cfg := connection.NewConfig(u)
	cfg.MaxElapsedRetry = 10 * time.Second
	s.conn = httpconn.New(cfg)
}

func (s *ServerTestSuite) TearDownTest() {
	s.http.Close()
}

func (s *ServerTestSuite) TestInsertAndGet() {
	ctx := connection.WithCredential(context.Background(), "alice")
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	created, err := s.conn.Insert(ctx, &models.EntityDto{
		KindName:   "Guestbook",
		Properties: map[string]any{"message": "hi", "stars": int64(5), "at": at},
	})
	s.Require().NoError(err)
	s.NotEmpty(created.ID)
	s.Equal("alice", created.CreatedBy)

	got, err := s.conn.Get(ctx, "Guestbook", created.ID)
	s.Require().NoError(err)
	s.Equal("hi", got.Properties["message"])
	s.Equal(int64(5), got.Properties["stars"])
	s.Equal(at, got.Properties["at"])
}

func (s *ServerTestSuite) TestListWithFilter() {
	ctx := context.Background()
	for _, topic := range []string{"#cat", "#dog", "#cat"} {
		_, err := s.conn.Insert(ctx, &models.EntityDto{KindName: "_CloudMessages", Properties: map[string]any{"topicId": topic}})
		s.Require().NoError(err)
	}

	out, err := s.conn.List(ctx, catQuery(models.ScopePast, ""))
	s.Require().NoError(err)
	s.Require().Len(out.Entries, 2)
	s.True(out.Entries[0].CreatedAt.After(*out.Entries[1].CreatedAt))
}

func (s *ServerTestSuite) TestNotFoundIsPermanent() {
	s.store.InjectFailure(FailureConfig{Op: OpGet, Code: 404, Times: 1})

	_, err := s.conn.Get(context.Background(), "Guestbook", "nope")
	var rpcErr *connection.RPCError
	s.Require().ErrorAs(err, &rpcErr)
	s.Equal(404, rpcErr.Code)
	s.Equal("Not Found", rpcErr.Message)
}

func (s *ServerTestSuite) TestTemporaryFailureIsRetried() {
	s.store.InjectFailure(FailureConfig{Op: OpInsert, Code: 503, Times: 2})

	created, err := s.conn.Insert(context.Background(), &models.EntityDto{KindName: "Guestbook"})
	s.Require().NoError(err)
	s.NotEmpty(created.ID)
	s.Equal(1, s.store.Count("Guestbook"))
}

func (s *ServerTestSuite) TestDeleteAll() {
	ctx := context.Background()
	out, err := s.conn.InsertAll(ctx, &models.EntityListDto{Entries: []*models.EntityDto{
		{KindName: "Item"}, {KindName: "Item"},
	}})
	s.Require().NoError(err)
	s.Require().Len(out.Entries, 2)

	s.Require().NoError(s.conn.DeleteAll(ctx, models.KeyListDto("Item", []string{out.Entries[0].ID, out.Entries[1].ID})))
	s.Equal(0, s.store.Count("Item"))
}

func (s *ServerTestSuite) TestJSONCodec() {
	u, err := url.Parse(s.http.URL)
	s.Require().NoError(err)
	cfg := connection.NewConfig(u)
	cfg.Codec = codec.JSON{}
	conn := httpconn.New(cfg)

	ctx := context.Background()
	_, err = conn.Insert(ctx, &models.EntityDto{KindName: "_CloudMessages", Properties: map[string]any{"topicId": "#cat"}})
	s.Require().NoError(err)

	since := time.Now().Add(-time.Hour)
	q := models.NewQuery("_CloudMessages").SetFilter(models.And(
		models.Eq("topicId", "#cat"),
		models.Gt(models.PropCreatedAt, since),
	))
	dto, err := q.ToDto("")
	s.Require().NoError(err)
	out, err := conn.List(ctx, dto)
	s.Require().NoError(err)
	s.Len(out.Entries, 1)
}

type recordingReceiver chan string

func (r recordingReceiver) OnPushNotification(token string) { r <- token }

func TestServerPush(t *testing.T) {
	store := NewStore(zerolog.Nop())
	server := NewServer("127.0.0.1:0", store, zerolog.Nop())
	require.NoError(t, server.Start())
	defer server.Stop(context.Background())

	assert.True(t, strings.HasPrefix(server.PushURL(), "ws://127.0.0.1:"))

	received := make(recordingReceiver, 1)
	provider := push.NewWebSocketProvider(server.PushURL(), zerolog.Nop()).SetReceiver(received)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	regID, err := provider.Register(ctx, "42")
	require.NoError(t, err)
	defer provider.Close(ctx)

	u, err := url.Parse(server.URL())
	require.NoError(t, err)
	conn := httpconn.New(connection.NewConfig(u))

	_, err = conn.List(ctx, catQuery(models.ScopeFuture, regID))
	require.NoError(t, err)
	_, err = conn.Insert(ctx, &models.EntityDto{KindName: "_CloudMessages", Properties: map[string]any{"topicId": "#cat"}})
	require.NoError(t, err)

	select {
	case token := <-received:
		assert.Equal(t, regID+":query:#cat", token)
	case <-ctx.Done():
		t.Fatal("no push received")
	}
}
