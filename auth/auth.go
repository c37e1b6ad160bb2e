// Package auth defines the caller identity model and the authorization hooks
// used by the Folio service. Every service operation receives an Identity; a
// pluggable Authorizer decides whether that identity may perform the
// operation.
package auth

import (
	"context"
	"errors"

	"github.com/xraph/folio/id"
)

// Sentinel errors returned by authenticators and authorizers.
var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrDenied       = errors.New("auth: operation denied")
)

// Identity describes an authenticated caller.
type Identity struct {
	ID    id.UserID `json:"id"`
	Name  string    `json:"name"`
	Roles []string  `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Operation names a service action for authorization decisions.
type Operation string

const (
	OpInvoiceCreate Operation = "invoice.create"
	OpInvoiceRead   Operation = "invoice.read"
	OpInvoiceUpdate Operation = "invoice.update"
	OpInvoicePay    Operation = "invoice.pay"
	OpInvoiceDelete Operation = "invoice.delete"

	OpTransactionRead Operation = "transaction.read"
)

// Authenticator resolves a credential string to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*Identity, error)
}

// Authorizer decides whether an identity may perform an operation. A nil
// error allows the call.
type Authorizer interface {
	Authorize(ctx context.Context, identity *Identity, op Operation) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, identity *Identity, op Operation) error

func (f AuthorizerFunc) Authorize(ctx context.Context, identity *Identity, op Operation) error {
	return f(ctx, identity, op)
}

// AllowAll permits every operation for any authenticated identity.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(ctx context.Context, identity *Identity, op Operation) error {
		return nil
	})
}

// RequireRole permits an operation only when the identity carries role.
func RequireRole(role string, ops ...Operation) Authorizer {
	guarded := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		guarded[op] = true
	}
	return AuthorizerFunc(func(ctx context.Context, identity *Identity, op Operation) error {
		if len(guarded) > 0 && !guarded[op] {
			return nil
		}
		if identity.HasRole(role) {
			return nil
		}
		return ErrDenied
	})
}
