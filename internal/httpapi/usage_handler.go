package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"llm_proxy/internal/auth"
	"llm_proxy/internal/storage"
	"llm_proxy/internal/utils"
)

// handleGetUsage returns a workspace's current-month usage view. A
// workspace token may read its own usage; an admin JWT may read any.
func (d *Dependencies) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid workspace ID")
		return
	}

	if !d.authorizeWorkspaceRead(r, workspaceID) {
		utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	usage, err := d.Monitor.GetWorkspaceUsage(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, storage.ErrWorkspaceNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "workspace not found")
			return
		}
		d.logger.Error("Failed to get workspace usage", "workspace_id", workspaceID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, usage)
}

// updateLimitRequest is the wire shape of a limit update.
type updateLimitRequest struct {
	Limit   float64 `json:"limit"`
	Enabled bool    `json:"enabled"`
}

// handleUpdateLimit changes a workspace's monthly spend limit. Admin
// JWT only.
func (d *Dependencies) handleUpdateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := d.adminSubject(r); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "admin token required")
		return
	}

	workspaceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid workspace ID")
		return
	}

	var req updateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := d.Monitor.UpdateWorkspaceLimit(ctx, workspaceID, req.Limit, req.Enabled); err != nil {
		if errors.Is(err, storage.ErrWorkspaceNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "workspace not found")
			return
		}
		d.logger.Error("Failed to update workspace limit", "workspace_id", workspaceID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"workspace_id": workspaceID,
		"limit":        req.Limit,
		"enabled":      req.Enabled,
	})
}

// handleHealth reports the liveness of the proxy and its dependencies.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]any{"status": "ok"}
	code := http.StatusOK

	if err := d.DB.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	utils.RespondWithJSON(w, code, status)
}

// authorizeWorkspaceRead allows either the workspace's own token or an
// admin JWT.
func (d *Dependencies) authorizeWorkspaceRead(r *http.Request, workspaceID uuid.UUID) bool {
	header := r.Header.Get("Authorization")

	if _, err := d.adminSubject(r); err == nil {
		return true
	}

	workspace, err := d.Tokens.Resolve(r.Context(), header)
	if err != nil {
		return false
	}
	return workspace.ID == workspaceID
}

// adminSubject validates the admin JWT on a request and returns its
// subject.
func (d *Dependencies) adminSubject(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", auth.ErrInvalidToken
	}
	return auth.ValidateAdminJWT(token, d.Config.AdminJWTSecret)
}
