package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type tenantScopeKey struct{}

// GetTenantScope returns the project-scoped connection carried by ctx.
// Repositories refuse to run without one.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(tenantScopeKey{}).(*TenantScope)
	return scope, ok && scope != nil
}

// SetTenantScope stores scope in ctx.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, tenantScopeKey{}, scope)
}

// TenantScopeProvider opens project-scoped contexts for callers that do not
// pass through the HTTP middleware, such as MCP tool calls.
type TenantScopeProvider struct {
	db *DB
}

// NewTenantScopeProvider creates a TenantScopeProvider for the given database.
func NewTenantScopeProvider(db *DB) *TenantScopeProvider {
	return &TenantScopeProvider{db: db}
}

// WithTenantScope acquires a connection bound to projectID and returns a
// context carrying it. The cleanup func releases the connection and must be called.
func (p *TenantScopeProvider) WithTenantScope(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
	scope, err := p.db.WithTenant(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire tenant scope for project %s: %w", projectID, err)
	}
	return SetTenantScope(ctx, scope), scope.Close, nil
}
