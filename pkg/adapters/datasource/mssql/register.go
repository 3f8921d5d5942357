package mssql

import (
	"context"

	"github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        models.DatasourceTypeMSSQL,
			DisplayName: "Microsoft SQL Server",
			Dialect:     models.ProcedureDialectTSQL,
		},
		ProcedureReaderFactory: openReader,
	})
}

// openReader parses a decrypted datasource config and connects.
func openReader(ctx context.Context, raw map[string]any, opts datasource.ConnectOptions) (datasource.ProcedureReader, error) {
	cfg, err := FromMap(raw)
	if err != nil {
		return nil, err
	}
	return NewProcedureReader(ctx, cfg, opts)
}
