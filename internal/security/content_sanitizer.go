// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProductHTML は外部の商品カタログから取得した説明文HTMLを扱う。
// 表示用には許可リストベースでサニタイズし、検索・SEO用にはテキストのみを抽出する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ProductHTML は商品説明HTMLの変換機能のインターフェース。
type ProductHTML interface {
	// Sanitize は許可タグのみを残した安全なHTMLを返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
	// PlainText はHTMLからテキストノードのみを連結して返す。
	// script・style要素の中身は含めない。文字参照は展開される。
	PlainText(rawHTML string) string
}

// productHTML はProductHTMLの実装。bluemondayのポリシーはゴルーチンセーフ。
type productHTML struct {
	policy *bluemonday.Policy
}

// NewProductHTML はProductHTMLの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, b, i, u, h2〜h4, span, table系
//   - aタグ: hrefを許可し、target="_blank" と rel="noopener noreferrer" を付与
//   - imgタグ: src, alt, width, heightのみ許可
//   - URLスキームはhttpsのみ
func NewProductHTML() *productHTML {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "b", "i", "u",
		"h2", "h3", "h4", "span",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// 商品画像はShopifyのCDN（https）から配信される
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.Integer).OnElements("img")
	p.AllowURLSchemes("https")

	return &productHTML{policy: p}
}

// Sanitize は商品説明HTMLをサニタイズする。
func (s *productHTML) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}

// PlainText は商品説明HTMLからテキストを抽出する。
func (s *productHTML) PlainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOFまたは不正な入力。それまでに得たテキストを返す
			return b.String()
		case html.StartTagToken:
			if a := z.Token().DataAtom; a == atom.Script || a == atom.Style {
				skip++
			}
		case html.EndTagToken:
			if a := z.Token().DataAtom; (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.WriteString(z.Token().Data)
			}
		}
	}
}
