// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// richText はローンチイベントやキャンペーンの説明文に使う許可リスト。
// 段落・改行・リスト・強調・リンクのみ残す。リンクはhttpsの絶対URLに限り、
// target="_blank"とrel="noopener noreferrer"を付与する。
var richText = newRichTextPolicy()

func newRichTextPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// SanitizeRichText は説明文のHTMLを許可リストでサニタイズする。
// 同一入力に対して常に同一出力を返す。
func SanitizeRichText(raw string) string {
	return strings.TrimSpace(richText.Sanitize(strings.TrimSpace(raw)))
}
