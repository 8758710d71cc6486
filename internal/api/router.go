package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/auth"
	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/metrics"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/scheduler"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It
// is populated in main.go after every component is initialized and passed
// to NewRouter as a single struct to keep the constructor signature
// manageable as the number of dependencies grows.
type RouterConfig struct {
	Verifier  auth.TokenVerifier
	Scheduler *scheduler.Scheduler
	Backup    *pipeline.BackupPipeline
	Restore   *pipeline.RestorePipeline
	Logger    *zap.Logger

	DBAdapters   *dbadapter.Registry
	StoragePool  *storage.Pool
	StorageBuild *storage.Registry
	Targets      repositories.TargetRepository
	Destinations repositories.DestinationRepository
	Schedules    repositories.ScheduleRepository
	Runs         repositories.RunRepository
}

// NewRouter builds and returns the fully configured Chi router. Every
// resource route is authenticated; the per-route RequireRole reflects the
// role mapping decided for this API (documented alongside the handlers):
// read operations need backup:read, mutations need backup:create/configure/
// delete, imperative run/restore operations need backup:run/backup:restore.
// backup:admin is a superset of every other role (auth.Principal.HasRole).
// /health and /metrics are unauthenticated — they expose no tenant data and
// are consumed by infrastructure (load balancers, Prometheus) that doesn't
// carry a bearer token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	targetHandler := NewTargetHandler(cfg.Targets, cfg.DBAdapters, cfg.Logger)
	destinationHandler := NewDestinationHandler(cfg.Destinations, cfg.Targets, cfg.StoragePool, cfg.StorageBuild, cfg.Logger)
	scheduleHandler := NewScheduleHandler(cfg.Schedules, cfg.Scheduler, cfg.Logger)
	runHandler := NewRunHandler(cfg.Runs, cfg.Logger)
	backupNowHandler := NewBackupNowHandler(cfg.Targets, cfg.Destinations, cfg.Backup, cfg.Logger)
	restoreNowHandler := NewRestoreNowHandler(cfg.Targets, cfg.Destinations, cfg.Restore, cfg.Logger)
	localBackupHandler := NewLocalBackupHandler(cfg.Targets, cfg.StoragePool, cfg.Logger)
	healthHandler := NewHealthHandler()

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/automation", func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier))

		r.Route("/targets", func(r chi.Router) {
			r.With(RequireRole(auth.RoleRead)).Get("/", targetHandler.List)
			r.With(RequireRole(auth.RoleCreate)).Post("/", targetHandler.Create)
			r.With(RequireRole(auth.RoleConfigure)).Post("/test-connection", targetHandler.TestConnection)
			r.With(RequireRole(auth.RoleRead)).Get("/{id}", targetHandler.GetByID)
			r.With(RequireRole(auth.RoleConfigure)).Put("/{id}", targetHandler.Update)
			r.With(RequireRole(auth.RoleDelete)).Delete("/{id}", targetHandler.Delete)
		})

		r.Route("/destinations", func(r chi.Router) {
			r.With(RequireRole(auth.RoleRead)).Get("/", destinationHandler.List)
			r.With(RequireRole(auth.RoleCreate)).Post("/", destinationHandler.Create)
			r.With(RequireRole(auth.RoleConfigure)).Post("/test-connection", destinationHandler.TestConnection)
			r.With(RequireRole(auth.RoleRead)).Get("/{id}", destinationHandler.GetByID)
			r.With(RequireRole(auth.RoleConfigure)).Put("/{id}", destinationHandler.Update)
			r.With(RequireRole(auth.RoleDelete)).Delete("/{id}", destinationHandler.Delete)
			r.With(RequireRole(auth.RoleRead)).Get("/{id}/backups", destinationHandler.ListBackups)
			r.With(RequireRole(auth.RoleRead)).Get("/{id}/backups/download", destinationHandler.DownloadBackup)
			r.With(RequireRole(auth.RoleDelete)).Delete("/{id}/backups/delete", destinationHandler.DeleteBackup)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.With(RequireRole(auth.RoleRead)).Get("/", scheduleHandler.List)
			r.With(RequireRole(auth.RoleCreate)).Post("/", scheduleHandler.Create)
			r.With(RequireRole(auth.RoleRun)).Post("/run-enabled-now", scheduleHandler.RunEnabledNow)
			r.With(RequireRole(auth.RoleRead)).Get("/{id}", scheduleHandler.GetByID)
			r.With(RequireRole(auth.RoleConfigure)).Put("/{id}", scheduleHandler.Update)
			r.With(RequireRole(auth.RoleDelete)).Delete("/{id}", scheduleHandler.Delete)
			r.With(RequireRole(auth.RoleRun)).Post("/{id}/run-now", scheduleHandler.RunNow)
		})

		r.With(RequireRole(auth.RoleRun)).Post("/backup-now", backupNowHandler.Handle)
		r.With(RequireRole(auth.RoleRestore)).Post("/restore-now", restoreNowHandler.Handle)

		r.Route("/audit", func(r chi.Router) {
			r.With(RequireRole(auth.RoleRead)).Get("/", runHandler.List)
			r.With(RequireRole(auth.RoleRead)).Get("/{id}", runHandler.GetByID)
		})
	})

	r.Route("/backup", func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier))
		r.With(RequireRole(auth.RoleRead)).Get("/list", localBackupHandler.List)
		r.With(RequireRole(auth.RoleRead)).Get("/download/{filename}", localBackupHandler.Download)
		r.With(RequireRole(auth.RoleDelete)).Post("/delete/{filename}", localBackupHandler.Delete)
	})

	return r
}
