// Package shopify はShopify Admin REST APIとの連携を提供する。
// 商品の取得（ページネーション対応）、ストアフロント向けの商品形式への変換、
// TTLキャッシュによるフォールバック、定期同期ジョブを含む。
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/storefront/internal/model"
)

const (
	// DefaultAPIVersion は使用するAdmin APIのバージョン。
	DefaultAPIVersion = "2024-10"
	// DefaultPageDelay はページネーション時のリクエスト間隔。
	DefaultPageDelay = 25 * time.Millisecond
	// vendorName はメトリクスのラベルに使用するベンダー名。
	vendorName = "shopify"

	// maxErrors は保持するAPIエラーの最大件数。
	maxErrors = 10

	defaultPageLimit   = 250
	defaultSearchLimit = 50

	productFields = "id,title,handle,body_html,images,variants,tags,product_type,vendor,created_at,updated_at"
	searchFields  = "id,title,handle,images,variants,tags,product_type,vendor"
)

var (
	// ErrNotConfigured はショップドメインまたはアクセストークンが未設定の場合に返される。
	ErrNotConfigured = errors.New("shopify: ショップドメインまたはアクセストークンが設定されていません")
	// ErrNotFound は指定のリソースが存在しない場合に返される。
	ErrNotFound = errors.New("shopify: リソースが見つかりません")
)

// nextPagePattern はLinkヘッダーのrel="next"エントリからpage_infoを抽出する。
var nextPagePattern = regexp.MustCompile(`<[^>]*[?&]page_info=([^&>]+)[^>]*>;\s*rel="next"`)

// StatusError はShopify APIがエラーステータスを返した場合のエラー。
type StatusError struct {
	StatusCode int
	Endpoint   string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("shopify: %s がステータス %d を返しました", e.Endpoint, e.StatusCode)
}

// CallRecorder は外部API呼び出しを記録するメトリクスのインターフェース。
type CallRecorder interface {
	RecordVendorCall(vendor, operation string, success bool, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordVendorCall(string, string, bool, time.Duration) {}

// Config はShopifyクライアントの設定。
type Config struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	PageDelay   time.Duration
}

// ListOptions は商品一覧取得のオプション。
type ListOptions struct {
	// ForceRefresh はキャッシュを使わずにAPIから取得する。
	ForceRefresh bool
	// Limit は1ページあたりの件数（デフォルト: 250）。
	Limit int
	// CollectionID はコレクションで絞り込む。
	CollectionID string
	// ProductType は商品タイプで絞り込む。
	ProductType string
}

// Client はShopify Admin APIのクライアント。
// ページ取得の間隔はrate.Limiterで制御する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	limiter    *rate.Limiter
	recorder   CallRecorder
	errors     *errorLog
	baseURL    string // テスト用にベースURLを差し替え可能
}

// errorLog はAPI呼び出しで発生したエラーを直近maxErrors件まで保持する。
type errorLog struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []model.SyncError
}

func (l *errorLog) add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.SyncError{Message: err.Error(), Timestamp: l.now()})
	if over := len(l.entries) - maxErrors; over > 0 {
		l.entries = l.entries[over:]
	}
}

func (l *errorLog) list() []model.SyncError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.SyncError{}, l.entries...)
}

func (l *errorLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.PageDelay <= 0 {
		config.PageDelay = DefaultPageDelay
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		limiter:    rate.NewLimiter(rate.Every(config.PageDelay), 1),
		recorder:   nopRecorder{},
		errors:     &errorLog{now: time.Now},
		baseURL:    fmt.Sprintf("https://%s/admin/api/%s", config.ShopDomain, config.APIVersion),
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (c *Client) SetRecorder(r CallRecorder) {
	if r != nil {
		c.recorder = r
	}
}

// Configured はショップドメインとアクセストークンが設定済みかを返す。
func (c *Client) Configured() bool {
	return c.config.ShopDomain != "" && c.config.AccessToken != ""
}

// Errors は直近のAPIエラーを古い順に返す。
func (c *Client) Errors() []model.SyncError {
	return c.errors.list()
}

// BaseURL はAPIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Products は商品を全ページ取得する。ページ間はPageDelayの間隔を空ける。
func (c *Client) Products(ctx context.Context, opts ListOptions) ([]apiProduct, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	var all []apiProduct
	pageInfo := ""
	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("fields", productFields)
		if pageInfo != "" {
			q.Set("page_info", pageInfo)
		}
		if opts.CollectionID != "" {
			q.Set("collection_id", opts.CollectionID)
		}
		if opts.ProductType != "" {
			q.Set("product_type", opts.ProductType)
		}

		var resp productsResponse
		header, err := c.get(ctx, "products", "/products.json", q, &resp)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Products...)

		pageInfo = nextPageInfo(header.Get("Link"))
		if pageInfo == "" {
			c.logger.Info("Shopifyから商品を取得しました",
				slog.Int("product_count", len(all)),
				slog.Int("pages", page),
			)
			return all, nil
		}
	}
}

// Product は商品を1件取得する。存在しない場合はErrNotFoundを返す。
func (c *Client) Product(ctx context.Context, id string) (*apiProduct, error) {
	var resp productResponse
	if _, err := c.get(ctx, "product", "/products/"+url.PathEscape(id)+".json", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Product == nil {
		return nil, ErrNotFound
	}
	return resp.Product, nil
}

// CollectionProducts はコレクションに含まれる商品を取得する。
func (c *Client) CollectionProducts(ctx context.Context, collectionID string) ([]apiProduct, error) {
	var resp productsResponse
	endpoint := "/collections/" + url.PathEscape(collectionID) + "/products.json"
	if _, err := c.get(ctx, "collection_products", endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// Search はタイトルで商品を検索する。limitが0以下の場合は50件。
func (c *Client) Search(ctx context.Context, query string, limit int) ([]apiProduct, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", searchFields)
	if query != "" {
		q.Set("title", query)
	}

	var resp productsResponse
	if _, err := c.get(ctx, "search", "/products.json", q, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// Shop はショップ情報を取得して接続を確認する。
func (c *Client) Shop(ctx context.Context) error {
	var resp json.RawMessage
	_, err := c.get(ctx, "shop", "/shop.json", nil, &resp)
	return err
}

// get はGETリクエストを送信し、2xxであればレスポンスをoutへデコードしてヘッダーを返す。
func (c *Client) get(ctx context.Context, operation, endpoint string, query url.Values, out any) (_ http.Header, err error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		c.recorder.RecordVendorCall(vendorName, operation, err == nil, time.Since(start))
		if err != nil {
			c.errors.add(err)
		}
	}()

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Shopify APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("shopify: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Shopify APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return resp.Header, nil
}

// nextPageInfo はLinkヘッダーから次ページのpage_infoを返す。次ページがなければ空文字列。
func nextPageInfo(link string) string {
	if !strings.Contains(link, `rel="next"`) {
		return ""
	}
	m := nextPagePattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	if v, err := url.QueryUnescape(m[1]); err == nil {
		return v
	}
	return m[1]
}
