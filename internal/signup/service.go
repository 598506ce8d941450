// Package signup はドロップ開始通知のメール登録を管理する。
// Brevoが利用可能であればBrevoのリストへ登録し、ローカルにも控えを保存する。
// Brevoが未設定または失敗した場合はローカルのストレージのみに保存する。
package signup

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// DefaultSource は登録元が未指定の場合の値。
const DefaultSource = "website"

// emailPattern は登録を受け付けるメールアドレスの形式。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Request はメール登録リクエスト。
type Request struct {
	Email  string `json:"email" validate:"required,signup_email"`
	Source string `json:"source" validate:"omitempty,max=64"`
}

// ContactService はメール配信サービスのインターフェース。
// brevo.Clientが実装する。
type ContactService interface {
	Configured() bool
	AddContact(ctx context.Context, email, source string) (alreadyListed bool, err error)
	SendLaunchNotification(ctx context.Context, storeURL string) error
	ListSubscriberCount(ctx context.Context) (int, error)
}

// Recorder はメール登録を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordSignup(service string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSignup(string) {}

// Service はメール登録とドロップ開始通知を扱う。
type Service struct {
	repo     repository.SignupRepository
	contacts ContactService
	logger   *slog.Logger
	storeURL string
	validate *validator.Validate
	recorder Recorder
	now      func() time.Time

	// mu は登録リストの読み込みから保存までを直列化する。
	mu sync.Mutex
}

// NewService はServiceの新しいインスタンスを生成する。
// contactsがnilの場合はローカル保存のみで動作する。
// storeURLはドロップ開始メールのリンク先。
func NewService(repo repository.SignupRepository, contacts ContactService, logger *slog.Logger, storeURL string) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 登録関数は固定のため失敗しない
	_ = v.RegisterValidation("signup_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return &Service{
		repo:     repo,
		contacts: contacts,
		logger:   logger,
		storeURL: storeURL,
		validate: v,
		recorder: nopRecorder{},
		now:      time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (s *Service) SetRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// ValidEmail はメールアドレスが登録可能な形式かを返す。
func (s *Service) ValidEmail(email string) bool {
	return s.validate.Var(email, "required,signup_email") == nil
}

// Add はメールアドレスを登録する。sourceが空の場合は"website"を使用する。
// 形式が不正な場合はINVALID_EMAIL、ローカル保存で重複した場合はEMAIL_ALREADY_REGISTEREDを返す。
func (s *Service) Add(ctx context.Context, email, source string) (*model.EmailSignup, error) {
	req := Request{Email: strings.TrimSpace(email), Source: source}
	if err := s.validate.Struct(req); err != nil {
		return nil, model.NewInvalidEmailError(email)
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}
	normalized := strings.ToLower(req.Email)

	if s.contactsAvailable() {
		signup, err := s.addViaContacts(ctx, normalized, req.Source)
		if err == nil {
			s.recorder.RecordSignup(model.SignupServiceBrevo)
			return signup, nil
		}
		s.logger.Warn("Brevoへの登録に失敗したためローカルに保存します",
			slog.String("error", err.Error()),
		)
	}

	signup, err := s.addLocal(ctx, normalized, req.Source)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordSignup(model.SignupServiceLocal)
	return signup, nil
}

// addViaContacts はBrevoへ登録し、成功した場合はローカルにも控えを保存する。
// 控えの保存失敗は記録のみで、登録自体は成功とする。
func (s *Service) addViaContacts(ctx context.Context, email, source string) (*model.EmailSignup, error) {
	alreadyListed, err := s.contacts.AddContact(ctx, email, source)
	if err != nil {
		return nil, err
	}

	signup := model.EmailSignup{
		Email:       email,
		Timestamp:   s.now().UTC(),
		Source:      source,
		Service:     model.SignupServiceBrevo,
		BrevoBackup: true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	signups, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("ローカル控えの読み込みに失敗しました", slog.String("error", err.Error()))
		return &signup, nil
	}
	if indexOf(signups, email) < 0 {
		signups = append(signups, signup)
		if err := s.repo.SaveAll(ctx, signups); err != nil {
			s.logger.Warn("ローカル控えの保存に失敗しました", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Brevoにメールアドレスを登録しました",
		slog.String("source", source),
		slog.Bool("already_listed", alreadyListed),
	)
	return &signup, nil
}

func (s *Service) addLocal(ctx context.Context, email, source string) (*model.EmailSignup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signups, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("登録済みメールアドレスの取得に失敗: %w", err)
	}
	if indexOf(signups, email) >= 0 {
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	signup := model.EmailSignup{
		Email:     email,
		Timestamp: s.now().UTC(),
		Source:    source,
		Service:   model.SignupServiceLocal,
	}
	signups = append(signups, signup)
	if err := s.repo.SaveAll(ctx, signups); err != nil {
		return nil, fmt.Errorf("メールアドレスの保存に失敗: %w", err)
	}

	s.logger.Info("ローカルにメールアドレスを登録しました",
		slog.String("source", source),
	)
	return &signup, nil
}

// NotifyDropLive はドロップ開始を登録者へ通知する。
// Brevoでの送信に成功した場合はローカルの登録をbrevo通知済みとし、
// Brevoのリスト登録者数（取得できなければローカル件数）を返す。
// それ以外は未通知の登録を通知済み（localStorage_simulation）として件数を返す。
func (s *Service) NotifyDropLive(ctx context.Context) (model.NotificationResult, error) {
	if s.contactsAvailable() {
		err := s.contacts.SendLaunchNotification(ctx, s.storeURL)
		if err == nil {
			return s.finishBrevoNotification(ctx)
		}
		s.logger.Warn("Brevoでのドロップ開始通知に失敗したためシミュレーションに切り替えます",
			slog.String("error", err.Error()),
		)
	}
	return s.simulateNotification(ctx)
}

func (s *Service) finishBrevoNotification(ctx context.Context) (model.NotificationResult, error) {
	local, err := s.markNotified(ctx, model.NotificationMethodBrevo)
	if err != nil {
		return model.NotificationResult{}, err
	}

	count, err := s.contacts.ListSubscriberCount(ctx)
	if err != nil {
		s.logger.Warn("Brevoの登録者数を取得できないためローカル件数を使用します",
			slog.String("error", err.Error()),
		)
		count = local
	}
	return model.NotificationResult{Count: count, Service: model.SignupServiceBrevo}, nil
}

func (s *Service) simulateNotification(ctx context.Context) (model.NotificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signups, err := s.repo.List(ctx)
	if err != nil {
		return model.NotificationResult{}, fmt.Errorf("登録済みメールアドレスの取得に失敗: %w", err)
	}

	now := s.now().UTC()
	notified := 0
	for i := range signups {
		if signups[i].Notified {
			continue
		}
		signups[i].Notified = true
		signups[i].NotifiedAt = &now
		signups[i].NotificationMethod = model.NotificationMethodSimulation
		notified++
	}

	if notified == 0 {
		s.logger.Info("未通知の登録者はいません")
		return model.NotificationResult{Count: 0, Service: model.SignupServiceLocal}, nil
	}
	if err := s.repo.SaveAll(ctx, signups); err != nil {
		return model.NotificationResult{}, fmt.Errorf("通知状態の保存に失敗: %w", err)
	}

	s.logger.Info("ドロップ開始通知をシミュレーションしました",
		slog.Int("count", notified),
	)
	return model.NotificationResult{Count: notified, Service: model.SignupServiceLocal}, nil
}

// markNotified は未通知の登録を通知済みにし、登録総数を返す。
func (s *Service) markNotified(ctx context.Context, method string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signups, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("登録済みメールアドレスの取得に失敗: %w", err)
	}

	now := s.now().UTC()
	changed := false
	for i := range signups {
		if signups[i].Notified {
			continue
		}
		signups[i].Notified = true
		signups[i].NotifiedAt = &now
		signups[i].NotificationMethod = method
		changed = true
	}
	if changed {
		if err := s.repo.SaveAll(ctx, signups); err != nil {
			return 0, fmt.Errorf("通知状態の保存に失敗: %w", err)
		}
	}
	return len(signups), nil
}

// Count はローカルに保存された登録数を返す。
func (s *Service) Count(ctx context.Context) (int, error) {
	signups, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("登録済みメールアドレスの取得に失敗: %w", err)
	}
	return len(signups), nil
}

// List はローカルに保存された登録を返す。
func (s *Service) List(ctx context.Context) ([]model.EmailSignup, error) {
	signups, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("登録済みメールアドレスの取得に失敗: %w", err)
	}
	return signups, nil
}

func (s *Service) contactsAvailable() bool {
	return s.contacts != nil && s.contacts.Configured()
}

func indexOf(signups []model.EmailSignup, email string) int {
	for i, sg := range signups {
		if sg.Email == email {
			return i
		}
	}
	return -1
}
