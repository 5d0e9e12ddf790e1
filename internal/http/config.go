package http

import (
	"encoding/json"
	"net/http"

	"github.com/BugBridge/BugBridge/internal/config"
	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type configJson struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	LogLevel      string `json:"log_level"`
	LogPath       string `json:"log_path"`
	LogMaxSize    int    `json:"log_max_size"`
	LogMaxBackups int    `json:"log_max_backups"`
	BaseURL       string `json:"base_url"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Date          string `json:"date"`
}

type configHandler struct {
	encoder encoder

	cfg    *config.AppConfig
	server Server
}

func newConfigHandler(encoder encoder, server Server, cfg *config.AppConfig) *configHandler {
	return &configHandler{
		encoder: encoder,
		cfg:     cfg,
		server:  server,
	}
}

func (h configHandler) Routes(r chi.Router) {
	r.Get("/", h.getConfig)
	r.Patch("/", h.updateConfig)
}

func (h configHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	conf := configJson{
		Host:          h.cfg.Config.Server.Host,
		Port:          h.cfg.Config.Server.Port,
		LogLevel:      h.cfg.Config.Logging.Level,
		LogPath:       h.cfg.Config.Logging.Path,
		LogMaxSize:    h.cfg.Config.Logging.MaxFileSize,
		LogMaxBackups: h.cfg.Config.Logging.MaxBackupCount,
		BaseURL:       h.cfg.Config.Server.BaseURL,
		Version:       h.server.version,
		Commit:        h.server.commit,
		Date:          h.server.date,
	}

	render.JSON(w, r, conf)
}

func (h configHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var data domain.ConfigUpdate

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.Error(w, err)
		return
	}

	if data.LogLevel != nil {
		h.cfg.Config.Logging.Level = *data.LogLevel
	}

	if data.LogPath != nil {
		h.cfg.Config.Logging.Path = *data.LogPath
	}

	render.NoContent(w, r)
}
