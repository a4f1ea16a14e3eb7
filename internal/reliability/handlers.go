package reliability

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler exposes manual backup operations
type Handler struct {
	service *BackupService
	log     zerolog.Logger
}

// NewHandler creates a new backup handler
func NewHandler(service *BackupService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "backups").Logger(),
	}
}

// HandleRunBackup handles POST /run - create, upload and rotate now
func (h *Handler) HandleRunBackup(w http.ResponseWriter, r *http.Request) {
	archive, err := h.service.CreateAndUploadBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, "Backup failed", http.StatusInternalServerError)
		return
	}

	deleted, err := h.service.PruneBackups(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"archive": archive,
		"pruned":  deleted,
	})
}

// HandleListBackups handles GET / - stored archives, newest first
func (h *Handler) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.service.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusInternalServerError)
		return
	}
	if backups == nil {
		backups = []BackupInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(backups)
}
