package launch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/storage"
)

// Start はCheckInterval間隔のティッカーでフェーズチェックを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.logger.Info("ローンチフェーズチェッカーを開始しました",
		slog.Duration("interval", s.config.CheckInterval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("フェーズチェックに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ローンチフェーズチェッカーを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("フェーズチェックに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はフェーズを1回再評価する。
// 前回と異なるフェーズになった場合はリスナーへ通知し、
// live_dropであればそのローンチ時刻に対するドロップ開始通知を1回だけ送信する。
// リスナーからRunOnceを呼び出してはならない。
func (s *Service) RunOnce(ctx context.Context) error {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	times, err := s.Times(ctx)
	if err != nil {
		return err
	}
	phase := PhaseAt(times.LaunchTime, times.DropEndTime, s.now())

	s.mu.Lock()
	previous := s.current
	s.current = phase
	s.mu.Unlock()

	if phase != previous {
		s.logger.Info("ローンチフェーズが遷移しました",
			slog.String("from", string(previous)),
			slog.String("to", string(phase)),
		)
		s.recorder.RecordPhaseTransition(string(previous), string(phase))
		s.emit(model.PhaseChange{
			Phase:       phase,
			Previous:    previous,
			LaunchTime:  times.LaunchTime,
			DropEndTime: times.DropEndTime,
		})
	}

	if phase == model.PhaseLiveDrop {
		return s.notifyOnce(ctx, *times.LaunchTime)
	}
	return nil
}

// Phase は直近のチェックで確定したフェーズを返す。
func (s *Service) Phase() model.LaunchPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe はフェーズ遷移のリスナーを登録する。戻り値の関数で解除する。
func (s *Service) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Watch はストレージの変更通知を購読し、ローンチ時刻のキーが変更されたらフェーズを再評価する。
// ctxがキャンセルされるまでブロックする。
func (s *Service) Watch(ctx context.Context, w storage.Watcher) {
	for change := range w.Watch(ctx) {
		if change.Key != repository.LaunchTimeKey && change.Key != repository.DropEndTimeKey {
			continue
		}
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("ストレージ変更後のフェーズチェックに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
}

// notifyOnce は指定ローンチ時刻の通知が未送信であれば送信し、送信済みとして記録する。
// 送信に失敗した場合は記録せず、次回のチェックで再試行する。
func (s *Service) notifyOnce(ctx context.Context, launchTime time.Time) error {
	sent, err := s.repo.NotificationsSentFor(ctx)
	if err != nil {
		return fmt.Errorf("通知送信状態の取得に失敗: %w", err)
	}
	if sent != nil && sent.Equal(launchTime) {
		return nil
	}
	if s.notifier == nil {
		return nil
	}

	result, err := s.notifier.NotifyDropLive(ctx)
	if err != nil {
		return fmt.Errorf("ドロップ開始通知の送信に失敗: %w", err)
	}
	if err := s.repo.MarkNotificationsSent(ctx, launchTime); err != nil {
		return fmt.Errorf("通知送信状態の保存に失敗: %w", err)
	}

	s.logger.Info("ドロップ開始通知を送信しました",
		slog.Int("count", result.Count),
		slog.String("service", result.Service),
	)
	return nil
}

func (s *Service) emit(change model.PhaseChange) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		s.call(fn, change)
	}
}

func (s *Service) call(fn Listener, change model.PhaseChange) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("フェーズリスナーでpanicが発生しました",
				slog.Any("panic", rec),
			)
		}
	}()
	fn(change)
}
