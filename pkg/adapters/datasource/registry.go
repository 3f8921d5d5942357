package datasource

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// DatasourceAdapterInfo describes a compiled-in adapter.
type DatasourceAdapterInfo struct {
	Type        string                  `json:"type"`
	DisplayName string                  `json:"display_name"`
	Dialect     models.ProcedureDialect `json:"dialect"`
}

// ProcedureReaderFactory opens a reader for a decrypted datasource config.
type ProcedureReaderFactory func(ctx context.Context, config map[string]any, opts ConnectOptions) (ProcedureReader, error)

// DatasourceAdapterRegistration pairs adapter info with its reader factory.
type DatasourceAdapterRegistration struct {
	Info                   DatasourceAdapterInfo
	ProcedureReaderFactory ProcedureReaderFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register adds an adapter. Adapters call it from init(); registering the same
// type twice is a programming error.
func Register(reg DatasourceAdapterRegistration) {
	if reg.Info.Type == "" || reg.ProcedureReaderFactory == nil {
		panic("datasource: Register requires a type and a reader factory")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[reg.Info.Type]; dup {
		panic(fmt.Sprintf("datasource: adapter %q registered twice", reg.Info.Type))
	}
	registry[reg.Info.Type] = reg
}

// Lookup returns the registration for a datasource type.
func Lookup(dsType string) (DatasourceAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// RegisteredAdapters lists adapter info ordered by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	registryMu.RUnlock()

	slices.SortFunc(result, func(a, b DatasourceAdapterInfo) int {
		return strings.Compare(a.Type, b.Type)
	})
	return result
}
