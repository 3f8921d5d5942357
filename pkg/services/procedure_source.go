package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource"
	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
	"github.com/schemadoc/schemadoc-engine/pkg/config"
	"github.com/schemadoc/schemadoc-engine/pkg/crypto"
	"github.com/schemadoc/schemadoc-engine/pkg/models"
	"github.com/schemadoc/schemadoc-engine/pkg/repositories"
)

// ProcedureSource loads the stored procedure definitions analyzed for join evidence.
type ProcedureSource interface {
	LoadProcedures(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error)
}

// metadataProcedureSource reads definitions mirrored during schema sync.
type metadataProcedureSource struct {
	repo repositories.StoredProcedureRepository
}

// NewMetadataProcedureSource reads procedures from the metadata store.
func NewMetadataProcedureSource(repo repositories.StoredProcedureRepository) ProcedureSource {
	return &metadataProcedureSource{repo: repo}
}

func (s *metadataProcedureSource) LoadProcedures(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// datasourceProcedureSource reads definitions live from the project's datasource.
type datasourceProcedureSource struct {
	datasourceRepo repositories.DatasourceRepository
	encryptor      *crypto.CredentialEncryptor
	adapterFactory datasource.DatasourceAdapterFactory
	logger         *zap.Logger
}

// NewDatasourceProcedureSource reads procedures through the project's registered datasource adapter.
func NewDatasourceProcedureSource(
	datasourceRepo repositories.DatasourceRepository,
	encryptor *crypto.CredentialEncryptor,
	adapterFactory datasource.DatasourceAdapterFactory,
	logger *zap.Logger,
) ProcedureSource {
	return &datasourceProcedureSource{
		datasourceRepo: datasourceRepo,
		encryptor:      encryptor,
		adapterFactory: adapterFactory,
		logger:         logger.Named("datasource-procedures"),
	}
}

func (s *datasourceProcedureSource) LoadProcedures(ctx context.Context, projectID uuid.UUID) ([]*models.StoredProcedure, error) {
	ds, encryptedConfig, err := s.datasourceRepo.GetPrimary(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get datasource: %w", err)
	}

	dsConfig, err := s.encryptor.DecryptConfig(encryptedConfig)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, fmt.Errorf("datasource %s: %w", ds.Name, apperrors.ErrCredentialsKeyMismatch)
		}
		return nil, fmt.Errorf("failed to decrypt datasource config: %w", err)
	}

	reader, err := s.adapterFactory.NewProcedureReader(ctx, ds.DatasourceType, dsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to datasource %s: %w", ds.Name, err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			s.logger.Warn("Failed to close procedure reader", zap.Error(cerr))
		}
	}()

	procs, err := reader.ReadProcedures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read procedures from %s: %w", ds.Name, err)
	}
	for _, p := range procs {
		if p.Dialect == "" {
			p.Dialect = ds.ProcedureDialect()
		}
	}

	s.logger.Debug("Read procedures from datasource",
		zap.String("project_id", projectID.String()),
		zap.String("datasource_type", ds.DatasourceType),
		zap.Int("procedures", len(procs)))

	return procs, nil
}

// ProcedureSourceDeps are the collaborators NewProcedureSource may need.
type ProcedureSourceDeps struct {
	StoredProcedureRepo repositories.StoredProcedureRepository
	DatasourceRepo      repositories.DatasourceRepository
	Encryptor           *crypto.CredentialEncryptor
	AdapterFactory      datasource.DatasourceAdapterFactory
	Logger              *zap.Logger
}

// NewProcedureSource picks the implementation named by kind
// (config.ProcedureSourceMetadata or config.ProcedureSourceDatasource).
func NewProcedureSource(kind string, deps *ProcedureSourceDeps) (ProcedureSource, error) {
	switch kind {
	case config.ProcedureSourceMetadata:
		return NewMetadataProcedureSource(deps.StoredProcedureRepo), nil
	case config.ProcedureSourceDatasource:
		if deps.Encryptor == nil {
			return nil, fmt.Errorf("procedure source %q requires a credentials key", kind)
		}
		return NewDatasourceProcedureSource(deps.DatasourceRepo, deps.Encryptor, deps.AdapterFactory, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown procedure source %q", kind)
	}
}
