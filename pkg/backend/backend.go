// Package backend defines the secrets-backend interface for skein.
//
// A secrets backend resolves connection credentials and variables by
// identifier from some storage system: environment variables, the metadata
// database, a secrets file, AWS Secrets Manager, Google Cloud Secret
// Manager, Azure Key Vault, or the OS keyring. All implementations satisfy
// the Backend interface so the resolver can search an ordered chain of
// them with uniform semantics.
//
// # Retrieval model
//
// GetConnValue is the primitive: it returns the stored serialized form of
// a connection, either the URI representation or a JSON object.
// GetConnection is defined in terms of it - backends that have no richer
// native record simply return Deserialize(connID, value). The historical
// accessors GetConnURI and GetConnections no longer exist; callers migrate
// to GetConnValue and GetConnection respectively.
//
// # Error handling
//
// Backends report a missing identifier with NotFoundError and credential
// problems with AuthError. The resolver treats NotFoundError as "keep
// searching the chain" and anything else as fatal, so wrapping unrelated
// failures in NotFoundError hides real problems.
//
// # Concurrency
//
// Implementations must be safe for concurrent use; the resolver fans out
// lookups across goroutines.
package backend

import (
	"context"

	"github.com/skeinworks/skein/pkg/connection"
)

// Backend is implemented by every secrets backend.
type Backend interface {
	// Name returns the backend's configured name, used in logs and errors.
	Name() string

	// GetConnValue returns the serialized form of the connection stored
	// under connID: a connection URI or a JSON object. Returns
	// NotFoundError when the backend has no record for connID.
	GetConnValue(ctx context.Context, connID string) (string, error)

	// GetConnection resolves connID into a structured Connection.
	// Backends without a native structured record implement this as
	// Deserialize over GetConnValue.
	GetConnection(ctx context.Context, connID string) (*connection.Connection, error)

	// GetVariable returns the plain variable stored under key, or
	// NotFoundError. Backends that do not store variables return
	// NotFoundError for every key and report it via Capabilities.
	GetVariable(ctx context.Context, key string) (string, error)

	// Capabilities describes what this backend supports.
	Capabilities() Capabilities

	// Validate checks configuration and connectivity without resolving
	// anything. It must honor ctx cancellation.
	Validate(ctx context.Context) error
}

// Lister is implemented by backends that can enumerate their connection ids.
type Lister interface {
	// ListConnIDs returns the identifiers of every stored connection.
	ListConnIDs(ctx context.Context) ([]string, error)
}

// Capabilities describes the optional features of a backend.
type Capabilities struct {
	// SupportsVariables reports whether GetVariable can succeed.
	SupportsVariables bool

	// SupportsListing reports whether the backend implements Lister.
	SupportsListing bool

	// RequiresAuth reports whether the backend needs credentials.
	RequiresAuth bool

	// AuthMethods names the accepted authentication mechanisms, e.g.
	// "iam-role", "managed-identity", "keyring".
	AuthMethods []string
}

// Deserialize turns a stored connection value into a Connection,
// auto-detecting the URI and JSON representations.
func Deserialize(connID, value string) (*connection.Connection, error) {
	return connection.Parse(connID, value)
}

// NotFoundError reports that a backend holds no record for an identifier.
type NotFoundError struct {
	// Backend is the name of the backend that was searched.
	Backend string

	// ConnID is the connection or variable identifier that was not found.
	ConnID string
}

func (e NotFoundError) Error() string {
	return "connection not found: " + e.ConnID + " in " + e.Backend
}

// AuthError reports that a backend could not authenticate to its store.
type AuthError struct {
	Backend string
	Message string
}

func (e AuthError) Error() string {
	return "authentication failed for " + e.Backend + ": " + e.Message
}
