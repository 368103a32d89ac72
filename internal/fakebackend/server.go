package fakebackend

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/mobilebackend/cloudbackend.go/pkg/push"
)

// Server serves a Store over HTTP: the REST endpoint under
// connection.DefaultEndpointPath and the push websocket under
// constants.PushEndpointPath.
type Server struct {
	Store *Store

	addr     string
	listener net.Listener
	http     *http.Server
	upgrader gorilla.Upgrader
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[*gorilla.Conn]string
}

// NewServer creates a server for store. Use "127.0.0.1:0" to bind to a
// random available port.
func NewServer(addr string, store *Store, logger zerolog.Logger) *Server {
	s := &Server{
		Store:  store,
		addr:   addr,
		logger: logger,
		conns:  make(map[*gorilla.Conn]string),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes, for use with httptest.
func (s *Server) Handler() http.Handler {
	base := connection.DefaultEndpointPath
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+base+"/insert/{kind}", s.entityCall(s.Store.Insert))
	mux.HandleFunc("POST "+base+"/update/{kind}", s.entityCall(s.Store.Update))
	mux.HandleFunc("GET "+base+"/get/{kind}/{id}", s.handleGet)
	mux.HandleFunc("DELETE "+base+"/delete/{kind}/{id}", s.handleDelete)
	mux.HandleFunc("POST "+base+"/list", s.handleList)
	mux.HandleFunc("POST "+base+"/insertAll", s.listCall(s.Store.InsertAll))
	mux.HandleFunc("POST "+base+"/updateAll", s.listCall(s.Store.UpdateAll))
	mux.HandleFunc("POST "+base+"/getAll", s.listCall(s.Store.GetAll))
	mux.HandleFunc("POST "+base+"/deleteAll", s.handleDeleteAll)
	mux.HandleFunc("GET "+constants.PushEndpointPath, s.handlePush)
	return mux
}

// Start begins accepting connections in the background.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server stopped")
		}
	}()
	return nil
}

// Stop closes the listener and every push connection.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for conn, regID := range s.conns {
		s.Store.UnregisterDevice(regID)
		conn.Close()
	}
	s.conns = make(map[*gorilla.Conn]string)
	s.mu.Unlock()
	return s.http.Shutdown(ctx)
}

// Address returns the address the server listens on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the http root URL of the server.
func (s *Server) URL() string {
	return "http://" + s.Address()
}

// PushURL returns the websocket URL of the push endpoint.
func (s *Server) PushURL() string {
	return "ws://" + s.Address() + constants.PushEndpointPath
}

func codecFor(r *http.Request) codec.Codec {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = r.Header.Get("Accept")
	}
	if strings.HasPrefix(ct, codec.JSON{}.ContentType()) {
		return codec.JSON{}
	}
	return codec.NewCBOR()
}

// withCredential exposes the bearer token to the store as the caller's
// identity.
func withCredential(r *http.Request) context.Context {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return connection.WithCredential(r.Context(), token)
	}
	return r.Context()
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, c codec.Codec, dst any) bool {
	data, err := io.ReadAll(r.Body)
	if err == nil {
		err = c.Unmarshal(data, dst)
	}
	if err != nil {
		s.writeError(w, c, badRequest("decoding body: %v", err))
		return false
	}
	return true
}

func (s *Server) write(w http.ResponseWriter, c codec.Codec, v any) {
	data, err := c.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, c codec.Codec, err error) {
	var rpcErr *connection.RPCError
	if !errors.As(err, &rpcErr) {
		rpcErr = &connection.RPCError{Code: http.StatusInternalServerError, Message: err.Error()}
	}
	data, mErr := c.Marshal(connection.ErrorResponse{Error: rpcErr})
	if mErr != nil {
		w.WriteHeader(rpcErr.Code)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(rpcErr.Code)
	_, _ = w.Write(data)
}

func (s *Server) entityCall(fn func(context.Context, *models.EntityDto) (*models.EntityDto, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := codecFor(r)
		var dto models.EntityDto
		if !s.decode(w, r, c, &dto) {
			return
		}
		if dto.KindName == "" {
			dto.KindName = r.PathValue("kind")
		}
		out, err := fn(withCredential(r), &dto)
		if err != nil {
			s.writeError(w, c, err)
			return
		}
		s.write(w, c, out)
	}
}

func (s *Server) listCall(fn func(context.Context, *models.EntityListDto) (*models.EntityListDto, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := codecFor(r)
		var list models.EntityListDto
		if !s.decode(w, r, c, &list) {
			return
		}
		out, err := fn(withCredential(r), &list)
		if err != nil {
			s.writeError(w, c, err)
			return
		}
		s.write(w, c, out)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c := codecFor(r)
	out, err := s.Store.Get(withCredential(r), r.PathValue("kind"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, c, err)
		return
	}
	s.write(w, c, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	c := codecFor(r)
	if err := s.Store.Delete(withCredential(r), r.PathValue("kind"), r.PathValue("id")); err != nil {
		s.writeError(w, c, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	c := codecFor(r)
	var q models.QueryDto
	if !s.decode(w, r, c, &q) {
		return
	}
	out, err := s.Store.List(withCredential(r), &q)
	if err != nil {
		s.writeError(w, c, err)
		return
	}
	s.write(w, c, out)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	c := codecFor(r)
	var list models.EntityListDto
	if !s.decode(w, r, c, &list) {
		return
	}
	if err := s.Store.DeleteAll(withCredential(r), &list); err != nil {
		s.writeError(w, c, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePush registers the connecting device under a fresh registration id,
// sends it as the first frame and then forwards every push for it.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("push upgrade failed")
		return
	}

	regID := NewRegistrationID()
	var writeMu sync.Mutex
	send := func(m push.Message) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(gorilla.TextMessage, data)
	}

	if err := send(push.Message{RegID: regID}); err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.conns[conn] = regID
	s.mu.Unlock()
	s.Store.RegisterDevice(regID, PusherFunc(func(token string) {
		if err := send(push.Message{SubID: token}); err != nil {
			s.logger.Debug().Err(err).Str("regId", regID).Msg("push write failed")
		}
	}))
	s.logger.Debug().Str("regId", regID).Str(push.SenderQueryParam, r.URL.Query().Get(push.SenderQueryParam)).Msg("device registered")

	// Reads only serve to notice the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.Store.UnregisterDevice(regID)
	conn.Close()
}
