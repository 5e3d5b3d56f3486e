package handler

import (
	"net/http"
	"strings"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/contracts"
)

// ----- Handler: GET /health -----

func (handler *RealtimeHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- Handler: GET /api/realtime/stats -----

func (handler *RealtimeHTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Stats(ctx))
}

// ----- Handler: GET /api/presence/{userId} -----

func (handler *RealtimeHTTPHandler) handlePresence(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing userId in path", nil)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Presence(ctx, userID))
}

// ----- Handler: POST /tokens -----

// handleCreateToken issues tokens for local testing. Only mounted with dev tokens enabled.
func (handler *RealtimeHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req contracts.TokenRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	// validate required fields
	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "userId is required", nil)
		return
	}
	role, err := user.ParseRole(req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid role", err)
		return
	}

	// generate token
	token, claims, err := handler.auth.IssueUserToken(req.UserID, req.Name, role)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, contracts.TokenResponse{
		Token:     token,
		ExpiresAt: contracts.FormatTime(claims.ExpiresAt.Time),
	})
}
