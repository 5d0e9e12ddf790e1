package http

import (
	"fmt"
	"net"
	"net/http"

	"github.com/BugBridge/BugBridge/internal/config"
	"github.com/BugBridge/BugBridge/internal/database"
	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Server struct {
	log zerolog.Logger
	sse *sse.Server
	db  *database.DB

	config *config.AppConfig

	version string
	commit  string
	date    string

	syncManager    syncManager
	bugSyncManager bugSyncManager
	records        domain.SyncRecordRepo
}

func NewServer(
	log logger.Logger,
	config *config.AppConfig,
	sse *sse.Server,
	db *database.DB,
	version string,
	commit string,
	date string,
	syncMgr syncManager,
	bugSyncMgr bugSyncManager,
	records domain.SyncRecordRepo,
) Server {
	return Server{
		log:     log.With().Str("module", "http").Logger(),
		config:  config,
		sse:     sse,
		db:      db,
		version: version,
		commit:  commit,
		date:    date,

		syncManager:    syncMgr,
		bugSyncManager: bugSyncMgr,
		records:        records,
	}
}

func (s Server) Open() error {
	addr := fmt.Sprintf("%v:%v", s.config.Config.Server.Host, s.config.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := http.Server{
		Handler: s.Handler(),
	}

	s.log.Info().Msgf("Starting server. Listening on %s", listener.Addr().String())

	return server.Serve(listener)
}

func (s Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(&s.log))

	c := cors.New(cors.Options{
		AllowCredentials:   true,
		AllowedMethods:     []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowOriginFunc:    func(origin string) bool { return true },
		OptionsPassthrough: true,
	})
	r.Use(c.Handler)

	encoder := encoder{}

	r.Route("/api", func(r chi.Router) {
		r.Route("/healthz", newHealthHandler(encoder, s.db).Routes)

		r.Route("/sync", func(r chi.Router) {
			newSyncHandler(encoder, s.syncManager, s.records, s.RequireAPIKey).Routes(r)
			r.Route("/bugs", newBugSyncHandler(encoder, s.bugSyncManager, s.RequireAPIKey).Routes)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAPIKey)

			r.Route("/config", newConfigHandler(encoder, s, s.config).Routes)

			r.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
				s.sse.Headers = map[string]string{
					"Content-Type":      "text/event-stream",
					"Cache-Control":     "no-cache",
					"Connection":        "keep-alive",
					"X-Accel-Buffering": "no",
				}
				s.sse.ServeHTTP(w, r)
			})
		})
	})

	return r
}
