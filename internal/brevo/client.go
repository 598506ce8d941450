// Package brevo はBrevo（メール配信サービス）連携機能を提供する。
// 通知リストへのコンタクト登録、ドロップ開始メールの送信、登録者数の取得を含む。
package brevo

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// defaultBaseURL はBrevo API v3のベースURL。
	defaultBaseURL = "https://api.brevo.com/v3"
	// vendorName はメトリクスのラベルに使用するベンダー名。
	vendorName = "brevo"
	// duplicateCode は登録済みコンタクトを示すエラーコード。
	duplicateCode = "duplicate_parameter"

	launchSubject = "🔥 DYNASTY IS LIVE! The drop has begun! 👑"
	dynastyName   = "QUEEN LUCY LEGENDARY DROP"
	contactName   = "Queen Lucy Fan"
)

//go:embed templates/launch_email.html
var launchEmailHTML string

// ErrNotConfigured はAPIキーまたはリストIDが未設定の場合に返される。
var ErrNotConfigured = errors.New("brevo: APIキーまたはリストIDが設定されていません")

// ResponseError はBrevo APIがエラーステータスを返した場合のエラー。
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *ResponseError) Error() string {
	return fmt.Sprintf("brevo: ステータス %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// CallRecorder は外部API呼び出しを記録するメトリクスのインターフェース。
type CallRecorder interface {
	RecordVendorCall(vendor, operation string, success bool, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordVendorCall(string, string, bool, time.Duration) {}

// Config はBrevoクライアントの設定。
type Config struct {
	APIKey      string
	ListID      int64
	SenderName  string
	SenderEmail string
}

// Client はBrevo APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	recorder   CallRecorder
	now        func() time.Time
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// 送信者名・アドレスが未設定の場合は "Queen Lucy" / no-reply@queenlucy.com を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.SenderName == "" {
		config.SenderName = "Queen Lucy"
	}
	if config.SenderEmail == "" {
		config.SenderEmail = "no-reply@queenlucy.com"
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		recorder:   nopRecorder{},
		now:        time.Now,
		baseURL:    defaultBaseURL,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (c *Client) SetRecorder(r CallRecorder) {
	if r != nil {
		c.recorder = r
	}
}

// Configured はAPIキーとリストIDが設定済みかを返す。nilの場合はfalse。
func (c *Client) Configured() bool {
	return c != nil && c.config.APIKey != "" && c.config.ListID > 0
}

type contactAttributes struct {
	FirstName     string `json:"FIRSTNAME"`
	Source        string `json:"SOURCE"`
	SignupDate    string `json:"SIGNUP_DATE"`
	DynastyLaunch bool   `json:"DYNASTY_LAUNCH"`
}

type createContactRequest struct {
	Email         string            `json:"email"`
	Attributes    contactAttributes `json:"attributes"`
	ListIDs       []int64           `json:"listIds"`
	UpdateEnabled bool              `json:"updateEnabled"`
}

// AddContact はメールアドレスを通知リストに登録する。
// 既に登録済み（duplicate_parameter）の場合はalreadyListed=trueで成功とみなす。
func (c *Client) AddContact(ctx context.Context, email, source string) (alreadyListed bool, err error) {
	if !c.Configured() {
		return false, ErrNotConfigured
	}

	body := createContactRequest{
		Email: email,
		Attributes: contactAttributes{
			FirstName:     contactName,
			Source:        source,
			SignupDate:    c.now().UTC().Format(time.RFC3339Nano),
			DynastyLaunch: true,
		},
		ListIDs:       []int64{c.config.ListID},
		UpdateEnabled: false,
	}

	err = c.do(ctx, "add_contact", http.MethodPost, "/contacts", body, nil)
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.Code == duplicateCode {
		c.logger.Info("Brevoに登録済みのコンタクトです",
			slog.String("source", source),
		)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

type emailAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sendEmailRequest struct {
	Sender      emailAddress      `json:"sender"`
	To          []emailAddress    `json:"to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"htmlContent"`
	Params      map[string]string `json:"params"`
}

// SendLaunchNotification はドロップ開始メールを送信する。
// 宛先はBrevoのテンプレート変数でリストのコンタクトに展開される。
func (c *Client) SendLaunchNotification(ctx context.Context, storeURL string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body := sendEmailRequest{
		Sender: emailAddress{Name: c.config.SenderName, Email: c.config.SenderEmail},
		To: []emailAddress{
			{Email: "{{contact.EMAIL}}", Name: "{{contact.FIRSTNAME}}"},
		},
		Subject:     launchSubject,
		HTMLContent: launchEmailHTML,
		Params: map[string]string{
			"STORE_URL":    storeURL,
			"DYNASTY_NAME": dynastyName,
		},
	}
	return c.do(ctx, "send_launch_notification", http.MethodPost, "/smtp/email", body, nil)
}

type listResponse struct {
	TotalSubscribers int `json:"totalSubscribers"`
}

// ListSubscriberCount は通知リストの登録者数を返す。
func (c *Client) ListSubscriberCount(ctx context.Context) (int, error) {
	if !c.Configured() {
		return 0, ErrNotConfigured
	}

	var resp listResponse
	path := "/contacts/lists/" + strconv.FormatInt(c.config.ListID, 10)
	if err := c.do(ctx, "list_count", http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.TotalSubscribers, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do はAPIリクエストを送信し、2xxであればレスポンスをoutへデコードする。
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		c.recorder.RecordVendorCall(vendorName, operation, err == nil, time.Since(start))
	}()

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", c.config.APIKey)
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Brevo APIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("brevo: %s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		// エラーボディがJSONでない場合はステータスのみで判定する
		_ = json.Unmarshal(body, &e)
		respErr := &ResponseError{StatusCode: resp.StatusCode, Code: e.Code, Message: e.Message}
		if e.Code != duplicateCode {
			c.logger.Warn("Brevo APIがエラーステータスを返しました",
				slog.String("operation", operation),
				slog.Int("http_status", resp.StatusCode),
				slog.String("code", e.Code),
			)
		}
		return respErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
