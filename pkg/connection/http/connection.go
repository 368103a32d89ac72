// Package http implements connection.Connection against the mobile backend
// REST endpoint.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/internal/rand"
	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

// RequestIDHeader carries the per-call request id, useful to correlate
// client and server logs.
const RequestIDHeader = "X-Request-Id"

type Connection struct {
	BaseURL         string
	Codec           codec.Codec
	MaxElapsedRetry time.Duration

	httpClient *http.Client
	logger     zerolog.Logger
}

var _ connection.Connection = (*Connection)(nil)

func New(p *connection.Config) *Connection {
	return &Connection{
		BaseURL:         p.BaseURL,
		Codec:           p.Codec,
		MaxElapsedRetry: p.MaxElapsedRetry,
		httpClient: &http.Client{
			Timeout: p.Timeout,
		},
		logger: p.Logger,
	}
}

func (c *Connection) SetTimeout(timeout time.Duration) *Connection {
	c.httpClient.Timeout = timeout
	return c
}

func (c *Connection) SetHTTPClient(client *http.Client) *Connection {
	c.httpClient = client
	return c
}

func (c *Connection) Logger(l zerolog.Logger) *Connection {
	c.logger = l
	return c
}

func (c *Connection) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Connection) Insert(ctx context.Context, e *models.EntityDto) (*models.EntityDto, error) {
	var out models.EntityDto
	if err := c.call(ctx, http.MethodPost, "/insert/"+url.PathEscape(e.KindName), e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Connection) Update(ctx context.Context, e *models.EntityDto) (*models.EntityDto, error) {
	var out models.EntityDto
	if err := c.call(ctx, http.MethodPost, "/update/"+url.PathEscape(e.KindName), e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Connection) Get(ctx context.Context, kind, id string) (*models.EntityDto, error) {
	var out models.EntityDto
	path := fmt.Sprintf("/get/%s/%s", url.PathEscape(kind), url.PathEscape(id))
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Connection) Delete(ctx context.Context, kind, id string) error {
	path := fmt.Sprintf("/delete/%s/%s", url.PathEscape(kind), url.PathEscape(id))
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Connection) List(ctx context.Context, q *models.QueryDto) (*models.EntityListDto, error) {
	var out models.EntityListDto
	if err := c.call(ctx, http.MethodPost, "/list", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Connection) InsertAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error) {
	return c.batch(ctx, "/insertAll", list)
}

func (c *Connection) UpdateAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error) {
	return c.batch(ctx, "/updateAll", list)
}

func (c *Connection) GetAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error) {
	return c.batch(ctx, "/getAll", list)
}

func (c *Connection) DeleteAll(ctx context.Context, list *models.EntityListDto) error {
	return c.call(ctx, http.MethodPost, "/deleteAll", list, nil)
}

func (c *Connection) batch(ctx context.Context, path string, list *models.EntityListDto) (*models.EntityListDto, error) {
	var out models.EntityListDto
	if err := c.call(ctx, http.MethodPost, path, list, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs one endpoint call, retrying transport failures and
// temporary endpoint errors with exponential backoff.
func (c *Connection) call(ctx context.Context, method, path string, body, out any) error {
	if c.BaseURL == "" {
		return constants.ErrNoBaseURL
	}
	if c.Codec == nil {
		return constants.ErrNoMarshaler
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = c.Codec.Marshal(body); err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
	}

	requestID := rand.NewRequestID(constants.RequestIDLength)
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", c.Codec.ContentType())
		if body != nil {
			req.Header.Set("Content-Type", c.Codec.ContentType())
		}
		req.Header.Set(RequestIDHeader, requestID)
		if token, ok := connection.CredentialFromContext(ctx); ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		data, err := c.MakeRequest(req)
		if err != nil {
			var rpcErr *connection.RPCError
			if errors.As(err, &rpcErr) && !rpcErr.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := c.Codec.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s: %v", constants.ErrInvalidResponse, path, err))
		}
		return nil
	}

	if c.MaxElapsedRetry <= 0 {
		return unwrapPermanent(attempt())
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.MaxElapsedRetry
	err := backoff.RetryNotify(attempt, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("path", path).Str("requestId", requestID).Dur("wait", wait).Msg("retrying endpoint call")
	})
	return unwrapPermanent(err)
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (c *Connection) MakeRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBytes, nil
	}

	rpcErr := &connection.RPCError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	contentType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if contentType == c.Codec.ContentType() && len(respBytes) > 0 {
		var errorResponse connection.ErrorResponse
		if err := c.Codec.Unmarshal(respBytes, &errorResponse); err == nil && errorResponse.Error != nil {
			rpcErr.Message = errorResponse.Error.Message
			rpcErr.Description = errorResponse.Error.Description
		}
	} else if len(respBytes) > 0 {
		rpcErr.Description = strings.TrimSpace(string(respBytes))
	}
	return nil, rpcErr
}
