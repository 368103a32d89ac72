// Package connection defines the remote CRUD/query collaborator the client
// talks to. Implementations translate the calls to a concrete transport; the
// [http] subpackage speaks the mobile backend REST endpoint.
package connection

import (
	"context"

	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

// Connection performs one remote call per method. Every method may fail with
// a transport error; retries, if any, are the implementation's business.
//
// Batch methods preserve the input order in their result.
type Connection interface {
	Insert(ctx context.Context, e *models.EntityDto) (*models.EntityDto, error)
	Update(ctx context.Context, e *models.EntityDto) (*models.EntityDto, error)
	Get(ctx context.Context, kind, id string) (*models.EntityDto, error)
	Delete(ctx context.Context, kind, id string) error
	List(ctx context.Context, q *models.QueryDto) (*models.EntityListDto, error)

	InsertAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error)
	UpdateAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error)
	GetAll(ctx context.Context, list *models.EntityListDto) (*models.EntityListDto, error)
	DeleteAll(ctx context.Context, list *models.EntityListDto) error

	Close(ctx context.Context) error
}

type credentialKey struct{}

// WithCredential attaches the bearer credential used for calls made with ctx.
// An empty credential makes the call anonymous.
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey{}, credential)
}

// CredentialFromContext returns the credential set by WithCredential.
func CredentialFromContext(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(credentialKey{}).(string)
	return c, ok
}
