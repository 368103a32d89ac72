package cloudbackend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

// Backend is the synchronous CRUD client. Each method makes exactly one
// call on the underlying connection.
type Backend struct {
	conn   connection.Connection
	logger zerolog.Logger

	mu         sync.RWMutex
	credential string
}

func NewBackend(conn connection.Connection, logger zerolog.Logger) *Backend {
	return &Backend{conn: conn, logger: logger}
}

// SetCredential sets the bearer credential sent with every call. An empty
// credential makes calls anonymous.
func (b *Backend) SetCredential(credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credential = credential
}

func (b *Backend) Credential() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.credential
}

// withCredential attaches the client credential unless ctx already carries
// one.
func (b *Backend) withCredential(ctx context.Context) context.Context {
	if _, ok := connection.CredentialFromContext(ctx); ok {
		return ctx
	}
	return connection.WithCredential(ctx, b.Credential())
}

func (b *Backend) Close(ctx context.Context) error {
	return b.conn.Close(ctx)
}

func (b *Backend) Insert(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if err := checkEntity(e, false); err != nil {
		return nil, err
	}
	b.logger.Debug().Str("kind", e.Kind).Msg("insert")
	dto, err := b.conn.Insert(b.withCredential(ctx), e.ToDto())
	if err != nil {
		return nil, err
	}
	return models.EntityFromDto(dto), nil
}

func (b *Backend) Update(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if err := checkEntity(e, true); err != nil {
		return nil, err
	}
	b.logger.Debug().Str("kind", e.Kind).Str("id", e.ID).Msg("update")
	dto, err := b.conn.Update(b.withCredential(ctx), e.ToDto())
	if err != nil {
		return nil, err
	}
	return models.EntityFromDto(dto), nil
}

func (b *Backend) Get(ctx context.Context, kind, id string) (*models.Entity, error) {
	if err := checkKey(kind, id); err != nil {
		return nil, err
	}
	b.logger.Debug().Str("kind", kind).Str("id", id).Msg("get")
	dto, err := b.conn.Get(b.withCredential(ctx), kind, id)
	if err != nil {
		return nil, err
	}
	if dto == nil {
		return nil, fmt.Errorf("%w: get %s/%s returned nothing", constants.ErrInvalidResponse, kind, id)
	}
	return models.EntityFromDto(dto), nil
}

func (b *Backend) Delete(ctx context.Context, kind, id string) error {
	if err := checkKey(kind, id); err != nil {
		return err
	}
	b.logger.Debug().Str("kind", kind).Str("id", id).Msg("delete")
	return b.conn.Delete(b.withCredential(ctx), kind, id)
}

func (b *Backend) DeleteEntity(ctx context.Context, e *models.Entity) error {
	if err := checkEntity(e, true); err != nil {
		return err
	}
	return b.Delete(ctx, e.Kind, e.ID)
}

// List runs q once. A subscribing scope is sent without a registration id,
// so the backend has nowhere to push to; use Async.List for continuous
// queries.
func (b *Backend) List(ctx context.Context, q *models.Query) ([]*models.Entity, error) {
	return b.list(ctx, q, "")
}

func (b *Backend) list(ctx context.Context, q *models.Query, regID string) ([]*models.Entity, error) {
	if q == nil {
		return nil, constants.ErrNilQuery
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	dto, err := q.ToDto(regID)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().Str("kind", q.KindName).Str("queryId", dto.QueryID).Str("scope", dto.Scope).Msg("list")
	res, err := b.conn.List(b.withCredential(ctx), dto)
	if err != nil {
		return nil, err
	}
	return models.EntitiesFromListDto(res), nil
}

func (b *Backend) InsertAll(ctx context.Context, entities []*models.Entity) ([]*models.Entity, error) {
	for _, e := range entities {
		if err := checkEntity(e, false); err != nil {
			return nil, err
		}
	}
	b.logger.Debug().Int("count", len(entities)).Msg("insertAll")
	res, err := b.conn.InsertAll(b.withCredential(ctx), models.EntityListToDto(entities))
	if err != nil {
		return nil, err
	}
	return models.EntitiesFromListDto(res), nil
}

func (b *Backend) UpdateAll(ctx context.Context, entities []*models.Entity) ([]*models.Entity, error) {
	for _, e := range entities {
		if err := checkEntity(e, true); err != nil {
			return nil, err
		}
	}
	b.logger.Debug().Int("count", len(entities)).Msg("updateAll")
	res, err := b.conn.UpdateAll(b.withCredential(ctx), models.EntityListToDto(entities))
	if err != nil {
		return nil, err
	}
	return models.EntitiesFromListDto(res), nil
}

func (b *Backend) GetAll(ctx context.Context, kind string, ids []string) ([]*models.Entity, error) {
	for _, id := range ids {
		if err := checkKey(kind, id); err != nil {
			return nil, err
		}
	}
	b.logger.Debug().Str("kind", kind).Int("count", len(ids)).Msg("getAll")
	res, err := b.conn.GetAll(b.withCredential(ctx), models.KeyListDto(kind, ids))
	if err != nil {
		return nil, err
	}
	return models.EntitiesFromListDto(res), nil
}

func (b *Backend) DeleteAll(ctx context.Context, kind string, ids []string) error {
	for _, id := range ids {
		if err := checkKey(kind, id); err != nil {
			return err
		}
	}
	b.logger.Debug().Str("kind", kind).Int("count", len(ids)).Msg("deleteAll")
	return b.conn.DeleteAll(b.withCredential(ctx), models.KeyListDto(kind, ids))
}

// DeleteAllEntities deletes persisted entities that may be of different
// kinds.
func (b *Backend) DeleteAllEntities(ctx context.Context, entities []*models.Entity) error {
	list := &models.EntityListDto{Entries: make([]*models.EntityDto, 0, len(entities))}
	for _, e := range entities {
		if err := checkEntity(e, true); err != nil {
			return err
		}
		list.Entries = append(list.Entries, &models.EntityDto{ID: e.ID, KindName: e.Kind})
	}
	b.logger.Debug().Int("count", len(entities)).Msg("deleteAll")
	return b.conn.DeleteAll(b.withCredential(ctx), list)
}

func checkEntity(e *models.Entity, persisted bool) error {
	if e == nil {
		return constants.ErrNilEntity
	}
	if e.Kind == "" {
		return constants.ErrMissingKind
	}
	if persisted && e.ID == "" {
		return fmt.Errorf("%w: %s", constants.ErrMissingID, e.Kind)
	}
	return nil
}

func checkKey(kind, id string) error {
	if kind == "" {
		return constants.ErrMissingKind
	}
	if id == "" {
		return fmt.Errorf("%w: %s", constants.ErrMissingID, kind)
	}
	return nil
}
