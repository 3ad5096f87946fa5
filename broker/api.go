// Package broker exposes the broker's GraphQL admin schema as typed Go
// operations. Every mutation is a single round trip; callers that need
// the post-mutation state reload the entity rather than patching local
// copies.
package broker

import (
	"context"

	"github.com/mqdeck/mqdeck/entity"
)

// API is the operation surface the editor and list views depend on.
// Tests substitute an in-memory fake.
type API interface {
	List(ctx context.Context, kind entity.Kind) ([]entity.Entity, error)
	Get(ctx context.Context, kind entity.Kind, name string) (*entity.Entity, error)
	Create(ctx context.Context, kind entity.Kind, e *entity.Entity) error
	Update(ctx context.Context, kind entity.Kind, e *entity.Entity) error
	Delete(ctx context.Context, kind entity.Kind, name string) error
	Toggle(ctx context.Context, kind entity.Kind, name string, enabled bool) error

	AddAddress(ctx context.Context, kind entity.Kind, parent string, a entity.Address) error
	UpdateAddress(ctx context.Context, kind entity.Kind, parent string, a entity.Address) error
	DeleteAddress(ctx context.Context, kind entity.Kind, parent, address string) error

	ClusterNodeIDs(ctx context.Context) ([]string, error)

	ListCertificates(ctx context.Context, server string) ([]entity.Certificate, error)
	TrustCertificate(ctx context.Context, server, fingerprint string) error
	DeleteCertificate(ctx context.Context, server, fingerprint string) error
}

// NotFoundError is returned by Get when the broker has no entity with
// the requested name.
type NotFoundError struct {
	Kind entity.Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return string(e.Kind) + " " + e.Name + " not found"
}
