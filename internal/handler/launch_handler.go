package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// LaunchServiceInterface はローンチハンドラーが必要とするサービスインターフェース。
type LaunchServiceInterface interface {
	Status(ctx context.Context) (model.LaunchStatus, error)
	Countdown(ctx context.Context) (*model.Countdown, error)
	ScheduleLaunch(ctx context.Context) (model.LaunchTimes, error)
	SetLaunchTime(ctx context.Context, launchTime time.Time) (model.LaunchTimes, error)
	Reset(ctx context.Context) error
}

// LaunchHandler はローンチフェーズのHTTPハンドラー。
type LaunchHandler struct {
	service LaunchServiceInterface
}

// NewLaunchHandler はLaunchHandlerを生成する。
func NewLaunchHandler(service LaunchServiceInterface) *LaunchHandler {
	return &LaunchHandler{service: service}
}

// setLaunchTimeRequest はローンチ時刻設定リクエストのボディ。
type setLaunchTimeRequest struct {
	LaunchTime string `json:"launchTime"`
}

// countdownResponse はカウントダウンのAPIレスポンス。
// カウントダウン対象がない場合はActive=falseでCountdownはnull。
type countdownResponse struct {
	Active    bool             `json:"active"`
	Countdown *model.Countdown `json:"countdown"`
}

// GetStatus は現在のローンチ状態を返す。
// GET /api/launch
func (h *LaunchHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetCountdown は現在のカウントダウンを返す。
// GET /api/launch/countdown
func (h *LaunchHandler) GetCountdown(w http.ResponseWriter, r *http.Request) {
	cd, err := h.service.Countdown(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countdownResponse{Active: cd != nil, Countdown: cd})
}

// Schedule は設定済みのプレローンチ期間後にローンチを予約する。
// POST /api/admin/launch/schedule
func (h *LaunchHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	times, err := h.service.ScheduleLaunch(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, times)
}

// SetLaunchTime はローンチ時刻を指定する。
// PUT /api/admin/launch
func (h *LaunchHandler) SetLaunchTime(w http.ResponseWriter, r *http.Request) {
	var req setLaunchTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := time.Parse(time.RFC3339, req.LaunchTime)
	if err != nil {
		handleServiceError(w, model.NewInvalidLaunchTimeError(req.LaunchTime))
		return
	}

	times, err := h.service.SetLaunchTime(r.Context(), t)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, times)
}

// Reset はローンチ時刻と通知記録を削除する。
// DELETE /api/admin/launch
func (h *LaunchHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
