package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/auth"
	"github.com/frahmantamala/keyword-research-api/internal/dataforseo"
	"github.com/frahmantamala/keyword-research-api/internal/keywords"
	"github.com/frahmantamala/keyword-research-api/internal/searchhistory"
	searchhistorydb "github.com/frahmantamala/keyword-research-api/internal/searchhistory/postgres"
	"github.com/frahmantamala/keyword-research-api/internal/transaction"
	transactiondb "github.com/frahmantamala/keyword-research-api/internal/transaction/postgres"
	"github.com/frahmantamala/keyword-research-api/internal/transport"
	"github.com/frahmantamala/keyword-research-api/internal/transport/middleware"
	"github.com/frahmantamala/keyword-research-api/internal/transport/rest"
	"github.com/frahmantamala/keyword-research-api/internal/x402"
	"github.com/frahmantamala/keyword-research-api/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm shares the pgx connection pool with sqlx
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	// Identity (optional on metered routes, required for history)
	var verifier *auth.Verifier
	if config.Security.JWTPublicKey != "" {
		verifier, err = auth.NewVerifier(config.Security, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
	}

	// Payment gate
	pricing, err := x402.NewResolver(config.Pricing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize price resolver: %w", err)
	}
	facilitator := x402.NewFacilitatorClient(config.X402, appLogger)
	auditService := transaction.NewService(transactiondb.NewTransactionRepository(gormDB), appLogger)

	var identity x402.IdentityResolver
	if verifier != nil {
		identity = verifier
	}
	gate := x402.NewGate(config.X402, config.Server.BaseURL, pricing, facilitator, identity, auditService, appLogger)

	// Keyword research
	upstream := dataforseo.NewClient(config.DataForSEO, appLogger)
	keywordService := keywords.NewService(upstream, appLogger)

	base := transport.NewBaseHandler(appLogger)
	keywordHandler := keywords.NewHandler(keywordService, gate, config.Pricing.BatchMaxUnits, base)

	// Search history (only when identity is configured)
	var historyHandler *searchhistory.Handler
	var tokenVerifier middleware.TokenVerifier
	if verifier != nil {
		historyService := searchhistory.NewService(searchhistorydb.NewSearchHistoryRepository(gormDB), appLogger)
		historyHandler = searchhistory.NewHandler(historyService, base)
		tokenVerifier = verifier
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, config, keywordHandler, historyHandler, tokenVerifier, appLogger)

	return &Dependencies{
		Config: config,
		Logger: appLogger,
		DB:     db,
		Router: router,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
