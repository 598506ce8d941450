package shopify

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/security"
)

const (
	// DefaultCurrency はストアフロントの表示通貨。
	DefaultCurrency = "AUD"
	// DefaultCategory はproduct_typeが空の商品のカテゴリ。
	DefaultCategory = "general"

	seoDescriptionLength = 160
	newProductWindow     = 7 * 24 * time.Hour
)

// 商品バッジ
const (
	BadgeLimited   = "LIMITED"
	BadgeNew       = "NEW"
	BadgeRestocked = "RESTOCKED"
	BadgeSale      = "SALE"
)

// apiProduct はAdmin APIの商品レスポンス。
type apiProduct struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Handle      string       `json:"handle"`
	BodyHTML    string       `json:"body_html"`
	Images      []apiImage   `json:"images"`
	Variants    []apiVariant `json:"variants"`
	Tags        string       `json:"tags"`
	ProductType string       `json:"product_type"`
	Vendor      string       `json:"vendor"`
	CreatedAt   *time.Time   `json:"created_at"`
	UpdatedAt   *time.Time   `json:"updated_at"`
}

type apiImage struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiVariant struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Price             string  `json:"price"`
	CompareAtPrice    *string `json:"compare_at_price"`
	Available         bool    `json:"available"`
	InventoryQuantity int     `json:"inventory_quantity"`
	SKU               string  `json:"sku"`
	Weight            float64 `json:"weight"`
	Option1           string  `json:"option1"`
	Option2           string  `json:"option2"`
	Option3           string  `json:"option3"`
}

type productsResponse struct {
	Products []apiProduct `json:"products"`
}

type productResponse struct {
	Product *apiProduct `json:"product"`
}

// transformer はAdmin APIの商品をストアフロント表示用の形式に変換する。
type transformer struct {
	html security.ProductHTML
	now  func() time.Time
}

func newTransformer(html security.ProductHTML) *transformer {
	return &transformer{html: html, now: time.Now}
}

func (t *transformer) products(in []apiProduct) []model.Product {
	out := make([]model.Product, 0, len(in))
	for i := range in {
		out = append(out, t.product(&in[i]))
	}
	return out
}

func (t *transformer) product(p *apiProduct) model.Product {
	var main apiVariant
	if len(p.Variants) > 0 {
		main = p.Variants[0]
	}

	description := strings.TrimSpace(t.html.PlainText(p.BodyHTML))

	product := model.Product{
		ID:              strconv.FormatInt(p.ID, 10),
		Handle:          p.Handle,
		Name:            p.Title,
		Description:     description,
		DescriptionHTML: t.html.Sanitize(p.BodyHTML),
		Price:           parsePrice(main.Price),
		CompareAtPrice:  parseOptionalPrice(main.CompareAtPrice),
		Currency:        DefaultCurrency,
		Images:          make([]model.ProductImage, 0, len(p.Images)),
		Variants:        make([]model.ProductVariant, 0, len(p.Variants)),
		Tags:            splitTags(p.Tags),
		Category:        p.ProductType,
		Vendor:          p.Vendor,
		Available:       main.Available,
		Inventory:       main.InventoryQuantity,
		SKU:             main.SKU,
		Weight:          main.Weight,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		SEO: model.ProductSEO{
			Title:       p.Title,
			Description: truncateRunes(description, seoDescriptionLength),
		},
		Badge:         t.badge(p),
		IsNew:         t.isNew(p.CreatedAt),
		IsLimited:     strings.Contains(p.Tags, "limited"),
		StoreCategory: storeCategory(p.ProductType, p.Tags),
	}
	if product.Category == "" {
		product.Category = DefaultCategory
	}

	for _, img := range p.Images {
		alt := img.Alt
		if alt == "" {
			alt = p.Title
		}
		product.Images = append(product.Images, model.ProductImage{
			Src: img.Src, Alt: alt, Width: img.Width, Height: img.Height,
		})
	}

	for _, v := range p.Variants {
		product.Variants = append(product.Variants, model.ProductVariant{
			ID:             strconv.FormatInt(v.ID, 10),
			Title:          v.Title,
			Price:          parsePrice(v.Price),
			CompareAtPrice: parseOptionalPrice(v.CompareAtPrice),
			Available:      v.Available,
			Inventory:      v.InventoryQuantity,
			SKU:            v.SKU,
			Weight:         v.Weight,
			Options: model.VariantOptions{
				Size:     v.Option1,
				Color:    v.Option2,
				Material: v.Option3,
			},
		})
	}

	return product
}

// badge は表示バッジを決定する。LIMITED > NEW > RESTOCKED > SALE の優先順。
func (t *transformer) badge(p *apiProduct) string {
	tags := strings.ToLower(p.Tags)
	switch {
	case strings.Contains(tags, "limited"):
		return BadgeLimited
	case t.isNew(p.CreatedAt):
		return BadgeNew
	case strings.Contains(tags, "restocked"):
		return BadgeRestocked
	case strings.Contains(tags, "sale"):
		return BadgeSale
	}
	return ""
}

// isNew は作成日時が直近7日以内かを返す。
func (t *transformer) isNew(createdAt *time.Time) bool {
	if createdAt == nil {
		return false
	}
	return createdAt.After(t.now().Add(-newProductWindow))
}

// storeCategory はproduct_typeとタグからストアのカテゴリに振り分ける。判定は上から順に行う。
func storeCategory(productType, tags string) string {
	typ := strings.ToLower(productType)
	tagList := strings.ToLower(tags)

	containsAny := func(s string, subs ...string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny(typ, "hoodie", "sweatshirt"):
		return "hoodies"
	case containsAny(typ, "t-shirt", "tee", "shirt"):
		return "tees"
	case containsAny(typ, "hat", "beanie", "cap"):
		return "hats"
	case strings.Contains(typ, "sticker") || strings.Contains(tagList, "sticker"):
		return "stickers"
	case containsAny(typ, "accessory", "bag"):
		return "accessories"
	}
	return DefaultCategory
}

func splitTags(tags string) []string {
	if tags == "" {
		return []string{}
	}
	return strings.Split(tags, ", ")
}

// parsePrice は価格文字列を変換する。空や不正な値は0として扱う。
func parsePrice(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseOptionalPrice(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return parsePrice(*s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
