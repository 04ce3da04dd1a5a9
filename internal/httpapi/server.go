package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"account_sync/internal/config"
	"account_sync/internal/importer"
	"account_sync/internal/logbus"
	"account_sync/internal/model"
	"account_sync/internal/profile"
	"account_sync/internal/ws"
)

type AccountStore interface {
	GetAccount(ctx context.Context, id string) (model.Account, error)
	ListAccounts(ctx context.Context, kind model.AccountKind) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error)
	UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error)
	GetAPIKeys(ctx context.Context) (model.APIKeys, bool, error)
	UpsertAPIKeys(ctx context.Context, v model.APIKeys) error
}

type ProfileSync interface {
	Create(ctx context.Context, accountID string) (profile.CreateResult, error)
	Sync(ctx context.Context, accountID string) (profile.SyncResult, error)
	SyncAndDelete(ctx context.Context, accountID string) (profile.DeleteResult, error)
}

type Importer interface {
	Import(ctx context.Context, req importer.Request) importer.Result
}

type ActivitySelector interface {
	Pick(ctx context.Context) (model.Account, bool, error)
	Touch(ctx context.Context, id string) (model.Account, error)
}

type Options struct {
	Cfg      config.Config
	Bus      *logbus.Bus
	Store    AccountStore
	Profiles ProfileSync
	Importer Importer
	Activity ActivitySelector
}

type Server struct {
	cfg      config.Config
	bus      *logbus.Bus
	store    AccountStore
	profiles ProfileSync
	importer Importer
	activity ActivitySelector
	ws       *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:      opts.Cfg,
		bus:      opts.Bus,
		store:    opts.Store,
		profiles: opts.Profiles,
		importer: opts.Importer,
		activity: opts.Activity,
		ws:       ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/ws", s.ws)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.corsHandler())

		r.Route("/fb-accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts(model.AccountKindFB))
			r.Get("/for-activity", s.handleForActivity)
			r.Post("/bulk-import", s.handleBulkImport(importer.RoleFBAccount))
			r.Get("/{id}", s.handleGetAccount)
			r.Delete("/{id}", s.handleDeleteAccount)
			r.Post("/{id}/create-vision-profile", s.handleCreateProfile)
			r.Post("/{id}/vision-profile-sync", s.handleSyncProfile)
			r.Delete("/{id}/vision-profile-sync-and-delete", s.handleSyncAndDeleteProfile)
			r.Post("/{id}/activity", s.handleTouchActivity)
		})
		r.Route("/purchased-accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts(model.AccountKindPurchased))
			r.Post("/bulk-import", s.handleBulkImport(importer.RolePurchased))
			r.Delete("/{id}", s.handleDeleteAccount)
		})
		r.Get("/import/fields", s.handleImportFields)
		r.Get("/settings/email", s.handleGetEmailSettings)
		r.Post("/settings/email", s.handleUpdateEmailSettings)
		r.Get("/settings/api-keys", s.handleGetAPIKeys)
		r.Post("/settings/api-keys", s.handleUpdateAPIKeys)
	})
	return r
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	c := s.cfg.Server.Cors
	return cors.Handler(cors.Options{
		AllowedOrigins:   c.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: c.AllowCredentials,
		MaxAge:           600,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bus == nil || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.bus.Log("debug", "http request", map[string]any{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"took":      time.Since(start).String(),
			"requestId": middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
