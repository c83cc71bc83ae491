package core

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/animanga/mangapipe/internal/blob"
	"github.com/animanga/mangapipe/internal/config"
	"github.com/animanga/mangapipe/internal/db"
	"github.com/animanga/mangapipe/internal/jobs"
	"github.com/animanga/mangapipe/internal/metrics"
	"github.com/animanga/mangapipe/internal/origin"
	"github.com/animanga/mangapipe/internal/pipeline"
	"github.com/animanga/mangapipe/internal/publish"
	"github.com/animanga/mangapipe/internal/quota"
	"github.com/animanga/mangapipe/internal/service"
	"github.com/animanga/mangapipe/internal/store"
	"github.com/animanga/mangapipe/internal/websocket"
	"github.com/animanga/mangapipe/migrations"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	cfg        *config.Config
	database   *sql.DB
	st         *store.Store
	hub        *websocket.Hub
	jobManager *jobs.JobManager
	collector  *metrics.Collector
	origin     *origin.Client
	quotas     *quota.Manager
	svc        *service.Service
}

// New sets up and returns a new App instance. It loads the
// configuration, opens the database, runs migrations and wires the
// origin client, caches, pipeline and service together.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app, err := Assemble(cfg, database, prometheus.DefaultRegisterer)
	if err != nil {
		database.Close()
		return nil, err
	}

	log.Println("Core application setup complete.")
	return app, nil
}

// Assemble wires an App from an already-open database. Tests pass
// their own registerer so repeated assembly doesn't collide on metric
// registration.
func Assemble(cfg *config.Config, database *sql.DB, reg prometheus.Registerer) (*App, error) {
	st := store.New(database)
	collector := metrics.NewCollector(reg)

	originClient := origin.NewClient(origin.Options{
		BaseURL:       cfg.Origin.BaseURL,
		Timeout:       time.Duration(cfg.Origin.TimeoutSeconds) * time.Second,
		MaxRetries:    cfg.Origin.MaxRetries,
		RatePerSecond: cfg.Origin.RatePerSecond,
		BanLogPath:    cfg.Origin.BanLogPath,
		Metrics:       collector,
	})

	pipe := pipeline.New(pipeline.Options{
		Origin:           originClient,
		BlobStore:        blob.NewHTTPStore(cfg.Blob.BaseURL, cfg.Blob.Token),
		Publisher:        publish.New(cfg.Publish.BaseURL),
		PublishAuthor:    cfg.Publish.Author,
		Store:            st,
		Metrics:          collector,
		MaxArtifactBytes: int64(cfg.Pipeline.MaxArtifactMB) << 20,
		JPEGQuality:      cfg.Pipeline.JPEGQuality,
		MaxPageWidth:     uint(cfg.Pipeline.MaxPageWidth),
	})

	quotas := quota.New(st,
		quota.Limits{Daily: cfg.Quota.StandardDaily, Monthly: cfg.Quota.StandardMonthly},
		quota.Limits{Daily: cfg.Quota.PremiumDaily, Monthly: cfg.Quota.PremiumMonthly},
	)

	// The hub loop must be running before anything broadcasts; the CLI
	// and tests reach the pipeline without going through the server.
	hub := websocket.NewHub()
	go hub.Run()

	app := &App{
		cfg:       cfg,
		database:  database,
		st:        st,
		hub:       hub,
		collector: collector,
		origin:    originClient,
		quotas:    quotas,
	}

	app.svc = service.New(service.Options{
		Store:          st,
		Catalog:        originClient,
		Pipeline:       pipe,
		Quotas:         quotas,
		Hub:            hub,
		Metrics:        collector,
		SearchTTL:      time.Duration(cfg.Cache.SearchTTLHours) * time.Hour,
		MetadataMaxAge: time.Duration(cfg.Cache.MetadataMaxAgeHours) * time.Hour,
		SearchPageSize: cfg.Origin.PageLimit,
	})

	app.jobManager = jobs.NewManager(app)
	jobs.RegisterAll(app.jobManager)

	return app, nil
}

// Close gracefully closes the application's resources.
func (a *App) Close() {
	if a.database != nil {
		a.database.Close()
	}
}

func (a *App) Config() *config.Config       { return a.cfg }
func (a *App) DB() *sql.DB                  { return a.database }
func (a *App) Store() *store.Store          { return a.st }
func (a *App) WsHub() *websocket.Hub        { return a.hub }
func (a *App) JobManager() *jobs.JobManager { return a.jobManager }
func (a *App) Catalog() jobs.Catalog        { return a.origin }
func (a *App) Quotas() *quota.Manager       { return a.quotas }
func (a *App) Service() *service.Service    { return a.svc }
func (a *App) Metrics() *metrics.Collector  { return a.collector }
