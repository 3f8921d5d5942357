package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource"
	_ "github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource/mssql"
	_ "github.com/schemadoc/schemadoc-engine/pkg/adapters/datasource/postgres"
	"github.com/schemadoc/schemadoc-engine/pkg/config"
	"github.com/schemadoc/schemadoc-engine/pkg/crypto"
	"github.com/schemadoc/schemadoc-engine/pkg/database"
	"github.com/schemadoc/schemadoc-engine/pkg/handlers"
	"github.com/schemadoc/schemadoc-engine/pkg/mcp"
	"github.com/schemadoc/schemadoc-engine/pkg/mcp/tools"
	"github.com/schemadoc/schemadoc-engine/pkg/middleware"
	"github.com/schemadoc/schemadoc-engine/pkg/repositories"
	"github.com/schemadoc/schemadoc-engine/pkg/services"
	"github.com/schemadoc/schemadoc-engine/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("procedure_source", cfg.Detection.ProcedureSource),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	stdDB := db.StdDB()
	if err := database.RunMigrations(stdDB, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	_ = stdDB.Close()

	logicalFKService, err := buildLogicalFKService(cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)

	tenantMiddleware := database.WithTenantContext(db, logger)
	handlers.NewLogicalFKHandler(logicalFKService, logger).RegisterRoutes(mux, tenantMiddleware)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("schemadoc-engine", cfg.Version, logger)
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version)
		tools.RegisterLogicalFKTools(mcpServer.MCP(), &tools.LogicalFKToolDeps{
			Scoper:  database.NewTenantScopeProvider(db),
			Service: logicalFKService,
			Logger:  logger.Named("mcp_tools"),
		})
		mcpServer.RegisterRoutes(mux, cfg.MCP.Path)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting schemadoc-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		var err error
		if cfg.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func buildLogicalFKService(cfg *config.Config, logger *zap.Logger) (services.LogicalFKService, error) {
	var encryptor *crypto.CredentialEncryptor
	if cfg.ProjectCredentialsKey != "" {
		var err error
		encryptor, err = crypto.NewCredentialEncryptor(cfg.ProjectCredentialsKey)
		if err != nil {
			return nil, fmt.Errorf("invalid PROJECT_CREDENTIALS_KEY: %w", err)
		}
	}

	adapterFactory := datasource.NewDatasourceAdapterFactory(datasource.ConnectOptions{
		ConnectTimeout: cfg.Datasource.ConnectTimeout,
		MaxConns:       cfg.Datasource.PoolMaxConns,
	})
	adapterTypes := make([]string, 0)
	for _, info := range adapterFactory.ListTypes() {
		adapterTypes = append(adapterTypes, info.Type)
	}
	logger.Info("Datasource adapters available", zap.Strings("types", adapterTypes))

	procedures, err := services.NewProcedureSource(cfg.Detection.ProcedureSource, &services.ProcedureSourceDeps{
		StoredProcedureRepo: repositories.NewStoredProcedureRepository(),
		DatasourceRepo:      repositories.NewDatasourceRepository(),
		Encryptor:           encryptor,
		AdapterFactory:      adapterFactory,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure procedure source: %w", err)
	}

	var locker services.ProjectLocker
	if cfg.Detection.UseAdvisoryLock {
		locker = services.NewTenantScopeLocker()
	}

	return services.NewLogicalFKService(&services.LogicalFKServiceDeps{
		LogicalFKRepo:     repositories.NewLogicalFKRepository(logger),
		SchemaRepo:        repositories.NewSchemaRepository(),
		DetectionRunRepo:  repositories.NewDetectionRunRepository(),
		DependencyRepo:    repositories.NewTableDependencyRepository(),
		Procedures:        procedures,
		Extractor:         sql.NewDialectExtractor(),
		Locker:            locker,
		Logger:            logger,
		SPAnalysisTimeout: cfg.Detection.SPAnalysisTimeout,
		LoadRetries:       cfg.Detection.LoadRetries,
		IrregularPlurals:  cfg.Detection.IrregularPlurals,
	}), nil
}
