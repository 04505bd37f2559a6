package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mcoot/gameauth/internal/api/middleware"
	"github.com/mcoot/gameauth/internal/api/request"
	"github.com/mcoot/gameauth/internal/api/response"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/account"
)

// UserHandler handles profile, stats and leaderboard endpoints
type UserHandler struct {
	accountService *account.Service
	logger         *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(accountService *account.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// GetProfile handles GET /api/user/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	acct, err := h.accountService.GetProfile(r.Context(), identity.Account.ID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserResponse{User: response.UserFromModel(acct)})
}

// UpdateProfile handles PUT /api/user/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	var req request.UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	acct, err := h.accountService.UpdateProfile(r.Context(), identity.Account.ID, account.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserResponse{
		Message: "Profile updated successfully",
		User:    response.UserFromModel(acct),
	})
}

// DeleteProfile handles DELETE /api/user/profile
func (h *UserHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	if err := h.accountService.Deactivate(r.Context(), identity.Account.ID); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MessageResponse{
		Message: "Account deactivated successfully",
		Note:    "Your data has been preserved but the account is no longer accessible",
	})
}

// GetStats handles GET /api/user/stats
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	acct, err := h.accountService.GetStats(r.Context(), identity.Account.ID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.StatsFromModel(acct))
}

// UpdateStats handles PUT /api/user/stats
func (h *UserHandler) UpdateStats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	var req request.UpdateStatsRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	acct, err := h.accountService.UpdateStats(r.Context(), identity.Account.ID, account.StatsUpdate{
		TotalPlayTime: req.TotalPlayTime,
		GamesPlayed:   req.GamesPlayed,
		HighScore:     req.HighScore,
	})
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.StatsUpdateResponse{
		Message: "Stats updated successfully",
		Stats:   response.GameStatsFromModel(acct.Stats),
	})
}

// StartSession handles POST /api/user/session-start
func (h *UserHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	sessionID, acct, err := h.accountService.StartSession(r.Context(), identity.Account.ID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionStartResponse{
		Message:   "Game session started",
		SessionID: sessionID,
		User:      response.UserFromModel(acct),
	})
}

// Leaderboard handles GET /api/user/leaderboard. Authentication is optional;
// an authenticated caller also gets their own rank.
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	viewer := middleware.GetAccount(r.Context())
	var viewerID model.AccountID
	if viewer != nil {
		viewerID = viewer.ID
	}

	result, err := h.accountService.Leaderboard(r.Context(), page, limit, viewerID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LeaderboardFromPage(result, viewer))
}
