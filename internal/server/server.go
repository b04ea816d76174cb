package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fernwood/sprout/internal/backup"
	"github.com/fernwood/sprout/internal/handler"
	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/middleware"
	"github.com/fernwood/sprout/internal/push"
	"github.com/fernwood/sprout/internal/report"
	"github.com/fernwood/sprout/internal/store"
	ws "github.com/fernwood/sprout/internal/websocket"
)

// Config carries everything main reads from the environment.
type Config struct {
	LLM    LLMConfig
	Push   PushConfig
	Backup backup.Config
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	childH        *handler.ChildHandler
	taskH         *handler.TaskHandler
	childTaskH    *handler.ChildTaskHandler
	redemptionH   *handler.RedemptionHandler
	rewardH       *handler.RewardHandler
	reportH       *handler.ReportHandler
	pushH         *handler.PushHandler
	sessionStore  *store.SessionStore
	rateLimiter   *middleware.RateLimiter
	scheduler     *report.Scheduler
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	parentStore := store.NewParentStore(db)
	childStore := store.NewChildStore(db)
	sessionStore := store.NewSessionStore(db)
	taskStore := store.NewTaskStore(db)
	childTaskStore := store.NewChildTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	redemptionStore := store.NewRedemptionStore(db)
	reportStore := store.NewReportStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	ledgerSvc := ledger.NewService(childStore, taskStore, childTaskStore, rewardStore, redemptionStore, logger)

	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
	notifier := push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))

	llmClient := report.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, logger.With("component", "llm"))
	generator := report.NewGenerator(llmClient, childStore, childTaskStore, taskStore, reportStore, logger)
	scheduler := report.NewScheduler(ledgerSvc, generator, childStore, reportStore, logger)

	backupMgr := backup.NewManager(cfg.Backup, db, backupStore, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(parentStore, childStore, sessionStore, logger.With("component", "auth")),
		childH:        handler.NewChildHandler(childStore, ledgerSvc, hub, logger.With("component", "child")),
		taskH:         handler.NewTaskHandler(taskStore, logger.With("component", "task")),
		childTaskH:    handler.NewChildTaskHandler(ledgerSvc, taskStore, hub, notifier, logger.With("component", "child_task")),
		redemptionH:   handler.NewRedemptionHandler(ledgerSvc, rewardStore, hub, notifier, logger.With("component", "redemption")),
		rewardH:       handler.NewRewardHandler(ledgerSvc, hub, logger.With("component", "reward")),
		reportH:       handler.NewReportHandler(ledgerSvc, generator, reportStore, logger.With("component", "report")),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		sessionStore:  sessionStore,
		rateLimiter:   middleware.NewRateLimiter(),
		scheduler:     scheduler,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Scheduler returns the weekly report scheduler.
func (s *Server) Scheduler() *report.Scheduler {
	return s.scheduler
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/child-login", s.rateLimitedHandler(s.authH.ChildLogin))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	parentOnly := middleware.RequireParent

	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Live updates
	mux.Handle("GET /ws", ws.Handler(s.hub))

	// Child profiles
	mux.Handle("POST /api/children", parentOnly(http.HandlerFunc(s.childH.Create)))
	mux.Handle("GET /api/children", parentOnly(http.HandlerFunc(s.childH.List)))
	mux.HandleFunc("GET /api/children/{id}", s.childH.Get)
	mux.HandleFunc("GET /api/children/{id}/balance", s.childH.Balance)
	mux.Handle("PUT /api/children/{id}", parentOnly(http.HandlerFunc(s.childH.Update)))
	mux.Handle("DELETE /api/children/{id}", parentOnly(http.HandlerFunc(s.childH.Delete)))
	mux.Handle("POST /api/children/{id}/pin", parentOnly(http.HandlerFunc(s.childH.SetPIN)))
	mux.Handle("DELETE /api/children/{id}/pin", parentOnly(http.HandlerFunc(s.childH.ClearPIN)))

	// Task catalog
	mux.Handle("POST /api/tasks", parentOnly(http.HandlerFunc(s.taskH.Create)))
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("PUT /api/tasks/{id}", parentOnly(http.HandlerFunc(s.taskH.Update)))
	mux.Handle("DELETE /api/tasks/{id}", parentOnly(http.HandlerFunc(s.taskH.Delete)))

	// Assignment ledger
	mux.Handle("POST /api/children/{id}/tasks", parentOnly(http.HandlerFunc(s.childTaskH.Assign)))
	mux.HandleFunc("POST /api/children/{id}/tasks/start", s.childTaskH.Start)
	mux.Handle("POST /api/children/{id}/tasks/suggest", parentOnly(http.HandlerFunc(s.childTaskH.Suggest)))
	mux.HandleFunc("GET /api/children/{id}/tasks", s.childTaskH.List)
	mux.HandleFunc("GET /api/child-tasks/{id}", s.childTaskH.Get)
	mux.HandleFunc("PUT /api/child-tasks/{id}", s.childTaskH.Update)
	mux.HandleFunc("POST /api/child-tasks/{id}/begin", s.childTaskH.Begin)
	mux.HandleFunc("POST /api/child-tasks/{id}/complete", s.childTaskH.Complete)
	mux.HandleFunc("POST /api/child-tasks/{id}/verify", s.childTaskH.Verify)
	mux.HandleFunc("POST /api/child-tasks/{id}/reject", s.childTaskH.Reject)
	mux.HandleFunc("POST /api/child-tasks/{id}/give-up", s.childTaskH.GiveUp)
	mux.Handle("POST /api/child-tasks/{id}/miss", parentOnly(http.HandlerFunc(s.childTaskH.MarkMissed)))
	mux.Handle("DELETE /api/child-tasks/{id}", parentOnly(http.HandlerFunc(s.childTaskH.Delete)))

	// Redemptions
	mux.HandleFunc("POST /api/children/{id}/redemptions", s.redemptionH.Request)
	mux.HandleFunc("GET /api/children/{id}/redemptions", s.redemptionH.ListForChild)
	mux.Handle("GET /api/redemptions/pending", parentOnly(http.HandlerFunc(s.redemptionH.ListPending)))
	mux.Handle("POST /api/redemptions/{id}/approve", parentOnly(http.HandlerFunc(s.redemptionH.Approve)))
	mux.Handle("POST /api/redemptions/{id}/reject", parentOnly(http.HandlerFunc(s.redemptionH.Reject)))

	// Rewards and grants
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.HandleFunc("GET /api/children/{id}/rewards", s.rewardH.ListGrants)
	mux.HandleFunc("POST /api/children/{id}/rewards/equip", s.rewardH.Equip)

	// Reports
	mux.HandleFunc("GET /api/children/{id}/reports", s.reportH.List)
	mux.Handle("POST /api/children/{id}/reports", parentOnly(http.HandlerFunc(s.reportH.Generate)))

	// Push notifications
	mux.Handle("POST /api/push/subscribe", parentOnly(http.HandlerFunc(s.pushH.Subscribe)))
	mux.Handle("POST /api/push/unsubscribe", parentOnly(http.HandlerFunc(s.pushH.Unsubscribe)))
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
}
