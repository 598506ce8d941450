package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

func TestLaunchHandler_GetStatus(t *testing.T) {
	launchAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	until := int64(3600000)
	env := newTestEnv(t, func(d *RouterDeps) {
		d.LaunchService = &mockLaunchService{
			statusFn: func(ctx context.Context) (model.LaunchStatus, error) {
				return model.LaunchStatus{
					CurrentPhase:    model.PhasePreLaunch,
					LaunchTime:      &launchAt,
					EmailSignups:    3,
					TimeUntilLaunch: &until,
				}, nil
			},
		}
	})

	w := env.do(t, http.MethodGet, "/api/launch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got model.LaunchStatus
	decodeBody(t, w, &got)
	if got.CurrentPhase != model.PhasePreLaunch {
		t.Errorf("phase = %q, want %q", got.CurrentPhase, model.PhasePreLaunch)
	}
	if got.EmailSignups != 3 {
		t.Errorf("emailSignups = %d, want 3", got.EmailSignups)
	}
	if got.TimeUntilLaunch == nil || *got.TimeUntilLaunch != until {
		t.Errorf("timeUntilLaunch = %v, want %d", got.TimeUntilLaunch, until)
	}
}

func TestLaunchHandler_GetStatus_Error(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) {
		d.LaunchService = &mockLaunchService{
			statusFn: func(ctx context.Context) (model.LaunchStatus, error) {
				return model.LaunchStatus{}, errors.New("storage down")
			},
		}
	})

	w := env.do(t, http.MethodGet, "/api/launch", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestLaunchHandler_GetCountdown(t *testing.T) {
	tests := []struct {
		name       string
		countdown  *model.Countdown
		wantActive bool
	}{
		{"カウントダウンなし", nil, false},
		{"ローンチ前", &model.Countdown{Phase: model.PhasePreLaunch, Title: "Drop starts in", Days: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *RouterDeps) {
				d.LaunchService = &mockLaunchService{
					countdownFn: func(ctx context.Context) (*model.Countdown, error) { return tt.countdown, nil },
				}
			})

			w := env.do(t, http.MethodGet, "/api/launch/countdown", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var got countdownResponse
			decodeBody(t, w, &got)
			if got.Active != tt.wantActive {
				t.Errorf("active = %v, want %v", got.Active, tt.wantActive)
			}
			if tt.wantActive && (got.Countdown == nil || got.Countdown.Days != 1) {
				t.Errorf("countdown = %+v", got.Countdown)
			}
		})
	}
}

func TestLaunchHandler_Schedule(t *testing.T) {
	launchAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	dropEnd := launchAt.Add(48 * time.Hour)
	called := false
	env := newTestEnv(t, func(d *RouterDeps) {
		d.LaunchService = &mockLaunchService{
			scheduleLaunchFn: func(ctx context.Context) (model.LaunchTimes, error) {
				called = true
				return model.LaunchTimes{LaunchTime: &launchAt, DropEndTime: &dropEnd}, nil
			},
		}
	})

	w := env.do(t, http.MethodPost, "/api/admin/launch/schedule", "", middleware.AdminTokenHeader, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if !called {
		t.Error("ScheduleLaunch should be called")
	}
	var got model.LaunchTimes
	decodeBody(t, w, &got)
	if got.DropEndTime == nil || !got.DropEndTime.Equal(dropEnd) {
		t.Errorf("dropEndTime = %v, want %v", got.DropEndTime, dropEnd)
	}
}

func TestLaunchHandler_SetLaunchTime(t *testing.T) {
	var received time.Time
	env := newTestEnv(t, func(d *RouterDeps) {
		d.LaunchService = &mockLaunchService{
			setLaunchTimeFn: func(ctx context.Context, t time.Time) (model.LaunchTimes, error) {
				received = t
				return model.LaunchTimes{LaunchTime: &t}, nil
			},
		}
	})

	w := env.do(t, http.MethodPut, "/api/admin/launch", `{"launchTime":"2026-04-01T18:00:00+09:00"}`,
		middleware.AdminTokenHeader, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	want := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	if !received.Equal(want) {
		t.Errorf("received = %v, want %v", received, want)
	}
}

func TestLaunchHandler_SetLaunchTime_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"形式不正", `{"launchTime":"next friday"}`},
		{"空", `{"launchTime":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			w := env.do(t, http.MethodPut, "/api/admin/launch", tt.body, middleware.AdminTokenHeader, testAdminToken)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidLaunchTime {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidLaunchTime)
			}
		})
	}
}

func TestLaunchHandler_Reset(t *testing.T) {
	called := false
	env := newTestEnv(t, func(d *RouterDeps) {
		d.LaunchService = &mockLaunchService{
			resetFn: func(ctx context.Context) error {
				called = true
				return nil
			},
		}
	})

	w := env.do(t, http.MethodDelete, "/api/admin/launch", "", middleware.AdminTokenHeader, testAdminToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if !called {
		t.Error("Reset should be called")
	}
}

func TestLaunchHandler_AdminDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) { d.AdminToken = "" })

	w := env.do(t, http.MethodDelete, "/api/admin/launch", "", middleware.AdminTokenHeader, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != model.ErrCodeAdminRequired {
		t.Errorf("code = %v, want %s", body["code"], model.ErrCodeAdminRequired)
	}
}
