package datasource

import (
	"context"
	"fmt"
)

// DatasourceAdapterFactory opens procedure readers through the adapter registry.
type DatasourceAdapterFactory interface {
	NewProcedureReader(ctx context.Context, dsType string, config map[string]any) (ProcedureReader, error)
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	opts ConnectOptions
}

// NewDatasourceAdapterFactory returns a factory that applies opts to every
// reader it opens. A non-zero ConnectTimeout bounds the connect call only.
func NewDatasourceAdapterFactory(opts ConnectOptions) DatasourceAdapterFactory {
	return &registryFactory{opts: opts}
}

var _ DatasourceAdapterFactory = (*registryFactory)(nil)

func (f *registryFactory) NewProcedureReader(ctx context.Context, dsType string, config map[string]any) (ProcedureReader, error) {
	reg, ok := Lookup(dsType)
	if !ok {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}

	connectCtx := ctx
	if f.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, f.opts.ConnectTimeout)
		defer cancel()
	}

	reader, err := reg.ProcedureReaderFactory(connectCtx, config, f.opts)
	if err != nil {
		return nil, fmt.Errorf("open %s procedure reader: %w", reg.Info.DisplayName, err)
	}
	return reader, nil
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}
