package security

import (
	"strings"
	"testing"
)

func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewProductHTML()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"pタグ", "<p>Heavyweight cotton</p>", []string{"<p>Heavyweight cotton</p>"}},
		{"リスト", "<ul><li>380gsm</li><li>Oversized</li></ul>", []string{"<ul>", "<li>380gsm</li>", "</ul>"}},
		{"強調", "<strong>LIMITED</strong> <em>run</em>", []string{"<strong>LIMITED</strong>", "<em>run</em>"}},
		{"見出し", "<h3>Sizing</h3>", []string{"<h3>Sizing</h3>"}},
		{"表", "<table><tr><td>S</td><td>52cm</td></tr></table>", []string{"<table>", "<td>52cm</td>"}},
		{"https画像", `<img src="https://cdn.shopify.com/s/files/hoodie.png" alt="hoodie" width="400">`,
			[]string{"<img", `src="https://cdn.shopify.com/s/files/hoodie.png"`, `alt="hoodie"`, `width="400"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

func TestSanitize_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewProductHTML()

	tests := []struct {
		name       string
		input      string
		notContain []string
	}{
		{"script", `<p>ok</p><script>alert(1)</script>`, []string{"<script", "alert(1)"}},
		{"iframe", `<iframe src="https://evil.example"></iframe>`, []string{"<iframe"}},
		{"style", `<style>body{display:none}</style>`, []string{"<style", "display:none"}},
		{"onイベント", `<p onclick="steal()">x</p>`, []string{"onclick", "steal()"}},
		{"javascriptリンク", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"http画像", `<img src="http://insecure.example/x.png">`, []string{"http://insecure.example"}},
		{"data画像", `<img src="data:image/png;base64,AAAA">`, []string{"data:image"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, bad := range tt.notContain {
				if strings.Contains(got, bad) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

func TestSanitize_LinksOpenInNewTab(t *testing.T) {
	got := NewProductHTML().Sanitize(`<a href="https://queenlucy.com/size-guide">size guide</a>`)
	for _, want := range []string{`target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, expected to contain %q", got, want)
		}
	}
}

func TestSanitize_EmptyAndIdempotent(t *testing.T) {
	sanitizer := NewProductHTML()
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}

	input := `<p>Crown <strong>hoodie</strong></p><script>x</script>`
	once := sanitizer.Sanitize(input)
	if twice := sanitizer.Sanitize(once); once != twice {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}

func TestPlainText(t *testing.T) {
	sanitizer := NewProductHTML()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空", "", ""},
		{"プレーンテキスト", "Just text", "Just text"},
		{"タグ除去", "<p>Heavy <strong>cotton</strong> hoodie</p>", "Heavy cotton hoodie"},
		{"文字参照の展開", "<p>Tom &amp; Lucy &lt;3</p>", "Tom & Lucy <3"},
		{"scriptとstyleは除外", "<p>a</p><script>var x = 1;</script><style>p{}</style><p>b</p>", "ab"},
		{"改行は維持", "<p>line1</p>\n<p>line2</p>", "line1\nline2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProductHTMLInterface(t *testing.T) {
	var _ ProductHTML = NewProductHTML()
}
