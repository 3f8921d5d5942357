// Package datasource reads relationship evidence (procedure and function
// definitions) directly from a project's source database.
package datasource

import (
	"context"
	"time"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// ProcedureReader lists routine definitions from a source database.
// Each implementation owns its connection and must be closed when done.
type ProcedureReader interface {
	// ReadProcedures returns every user-defined procedure or function with a
	// readable definition, ordered by schema then name. Encrypted or
	// otherwise unreadable routines are omitted.
	ReadProcedures(ctx context.Context) ([]*models.StoredProcedure, error)

	// Close releases the database connection.
	Close() error
}

// ConnectOptions bound the connection a reader opens.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	MaxConns       int32
}
