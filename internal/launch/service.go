package launch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// Config はローンチシステムの設定パラメータ。
type Config struct {
	// CheckInterval はフェーズチェックの間隔（デフォルト: 30秒）。
	CheckInterval time.Duration
	// PrelaunchDuration はScheduleLaunchからローンチまでの時間（デフォルト: 24時間）。
	PrelaunchDuration time.Duration
	// DropDuration はローンチからドロップ終了までの時間（デフォルト: 24時間）。
	DropDuration time.Duration
}

// DefaultConfig はデフォルトのローンチ設定を返す。
func DefaultConfig() Config {
	return Config{
		CheckInterval:     30 * time.Second,
		PrelaunchDuration: 24 * time.Hour,
		DropDuration:      24 * time.Hour,
	}
}

// DropNotifier はドロップ開始時にサインアップ済みの購読者へ通知するインターフェース。
type DropNotifier interface {
	NotifyDropLive(ctx context.Context) (model.NotificationResult, error)
}

// SignupCounter はサインアップ数を返すインターフェース。
type SignupCounter interface {
	Count(ctx context.Context) (int, error)
}

// PhaseRecorder はフェーズ遷移を記録するメトリクスのインターフェース。
type PhaseRecorder interface {
	RecordPhaseTransition(from, to string)
}

type nopPhaseRecorder struct{}

func (nopPhaseRecorder) RecordPhaseTransition(string, string) {}

// Listener はフェーズ遷移の通知を受け取る関数。
type Listener func(change model.PhaseChange)

// Service はローンチ時刻の管理とフェーズ遷移の検知を行う。
type Service struct {
	repo     repository.LaunchRepository
	notifier DropNotifier
	counter  SignupCounter
	recorder PhaseRecorder
	logger   *slog.Logger
	config   Config
	now      func() time.Time

	// checkMu はチェックサイクルを直列化する。
	checkMu sync.Mutex

	mu        sync.Mutex
	current   model.LaunchPhase
	listeners map[int]Listener
	nextID    int
}

// NewService はServiceの新しいインスタンスを生成する。
// 現在のフェーズはpre_launchから開始し、最初のチェックで保存済み時刻に追従する。
// notifier、counterはnilでもよい。
func NewService(
	repo repository.LaunchRepository,
	notifier DropNotifier,
	counter SignupCounter,
	logger *slog.Logger,
	config Config,
) *Service {
	defaults := DefaultConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.PrelaunchDuration <= 0 {
		config.PrelaunchDuration = defaults.PrelaunchDuration
	}
	if config.DropDuration <= 0 {
		config.DropDuration = defaults.DropDuration
	}
	return &Service{
		repo:      repo,
		notifier:  notifier,
		counter:   counter,
		recorder:  nopPhaseRecorder{},
		logger:    logger,
		config:    config,
		now:       time.Now,
		current:   model.PhasePreLaunch,
		listeners: make(map[int]Listener),
	}
}

// SetRecorder はフェーズ遷移のメトリクス記録先を設定する。
func (s *Service) SetRecorder(r PhaseRecorder) {
	if r == nil {
		r = nopPhaseRecorder{}
	}
	s.recorder = r
}

// ScheduleLaunch は現在時刻からPrelaunchDuration後をローンチ時刻として設定する。
// ドロップ終了時刻はローンチ時刻 + DropDuration。
func (s *Service) ScheduleLaunch(ctx context.Context) (model.LaunchTimes, error) {
	launchTime := s.now().Add(s.config.PrelaunchDuration)
	times, err := s.SetLaunchTime(ctx, launchTime)
	if err != nil {
		return model.LaunchTimes{}, err
	}
	s.logger.Info("ローンチを予約しました",
		slog.Time("launch_time", *times.LaunchTime),
		slog.Time("drop_end_time", *times.DropEndTime),
	)
	return times, nil
}

// SetLaunchTime はローンチ時刻を設定する。ドロップ終了時刻はローンチ時刻 + DropDuration。
// 設定後すぐにフェーズを再評価する。
func (s *Service) SetLaunchTime(ctx context.Context, launchTime time.Time) (model.LaunchTimes, error) {
	if launchTime.IsZero() {
		return model.LaunchTimes{}, model.NewInvalidLaunchTimeError("ローンチ時刻が指定されていません")
	}
	// 保存はミリ秒精度のため揃えておく
	launchTime = launchTime.UTC().Truncate(time.Millisecond)
	dropEnd := launchTime.Add(s.config.DropDuration)

	if err := s.repo.SetTimes(ctx, launchTime, dropEnd); err != nil {
		return model.LaunchTimes{}, fmt.Errorf("ローンチ時刻の保存に失敗: %w", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("ローンチ時刻設定後のフェーズチェックに失敗しました",
			slog.String("error", err.Error()),
		)
	}
	return model.LaunchTimes{LaunchTime: &launchTime, DropEndTime: &dropEnd}, nil
}

// Reset はローンチ時刻・ドロップ終了時刻・通知済みマーカーを削除し、pre_launchに戻す。
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("ローンチ設定の削除に失敗: %w", err)
	}
	if err := s.RunOnce(ctx); err != nil {
		return err
	}
	s.logger.Info("ローンチ設定をリセットしました")
	return nil
}

// Times は保存済みのローンチ時刻を返す。
func (s *Service) Times(ctx context.Context) (model.LaunchTimes, error) {
	times, err := s.repo.Times(ctx)
	if err != nil {
		return model.LaunchTimes{}, fmt.Errorf("ローンチ時刻の取得に失敗: %w", err)
	}
	return times, nil
}

// CurrentPhase は保存済み時刻と現在時刻から求めたフェーズを返す。
func (s *Service) CurrentPhase(ctx context.Context) (model.LaunchPhase, error) {
	times, err := s.Times(ctx)
	if err != nil {
		return "", err
	}
	return PhaseAt(times.LaunchTime, times.DropEndTime, s.now()), nil
}

// Countdown は現在のカウントダウンを返す。ドロップ終了後や未設定の場合はnil。
func (s *Service) Countdown(ctx context.Context) (*model.Countdown, error) {
	times, err := s.Times(ctx)
	if err != nil {
		return nil, err
	}
	return CountdownAt(times, s.now()), nil
}

// Status はローンチシステムの状態を返す。
// サインアップ数の取得に失敗した場合は0として扱う。
func (s *Service) Status(ctx context.Context) (model.LaunchStatus, error) {
	times, err := s.Times(ctx)
	if err != nil {
		return model.LaunchStatus{}, err
	}
	now := s.now()

	status := model.LaunchStatus{
		CurrentPhase: PhaseAt(times.LaunchTime, times.DropEndTime, now),
		LaunchTime:   times.LaunchTime,
		DropEndTime:  times.DropEndTime,
	}
	if times.LaunchTime != nil {
		ms := times.LaunchTime.Sub(now).Milliseconds()
		status.TimeUntilLaunch = &ms
	}
	if times.DropEndTime != nil {
		ms := times.DropEndTime.Sub(now).Milliseconds()
		status.TimeUntilDropEnd = &ms
	}

	if s.counter != nil {
		n, err := s.counter.Count(ctx)
		if err != nil {
			s.logger.Warn("サインアップ数の取得に失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			status.EmailSignups = n
		}
	}
	return status, nil
}
