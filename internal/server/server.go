package server

import (
	gosync "sync"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/scheduler"
	"github.com/BugBridge/BugBridge/internal/sync"
	"github.com/rs/zerolog"
)

type Server struct {
	log    zerolog.Logger
	config *domain.Config

	scheduler      scheduler.Service
	syncManager    *sync.SyncManager
	bugSyncManager *sync.BugSyncManager

	lock gosync.Mutex
}

func NewServer(log logger.Logger, config *domain.Config, scheduler scheduler.Service, syncMgr *sync.SyncManager, bugSyncMgr *sync.BugSyncManager) *Server {
	return &Server{
		log:            log.With().Str("module", "server").Logger(),
		config:         config,
		scheduler:      scheduler,
		syncManager:    syncMgr,
		bugSyncManager: bugSyncMgr,
	}
}

func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	// start cron scheduler
	s.scheduler.Start()

	if err := s.syncManager.Start(); err != nil {
		return err
	}

	if err := s.bugSyncManager.Start(); err != nil {
		return err
	}

	return nil
}

func (s *Server) Shutdown() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.log.Info().Msg("Shutting down server")

	s.bugSyncManager.Stop()
	s.syncManager.Stop()

	// stop cron scheduler
	s.scheduler.Stop()
}
