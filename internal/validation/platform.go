package validation

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Platform は配信プラットフォームの定義。
type Platform struct {
	Name  string
	Label string
	// Domains はチャンネルURLとして認める登録可能ドメイン（eTLD+1）。
	// 空の場合はどのドメインも許可する。
	Domains []string
}

var platforms = map[string]Platform{
	"twitch":  {Name: "twitch", Label: "Twitch", Domains: []string{"twitch.tv"}},
	"youtube": {Name: "youtube", Label: "YouTube", Domains: []string{"youtube.com", "youtu.be"}},
	"kick":    {Name: "kick", Label: "Kick", Domains: []string{"kick.com"}},
	"tiktok":  {Name: "tiktok", Label: "TikTok", Domains: []string{"tiktok.com"}},
	"x":       {Name: "x", Label: "X", Domains: []string{"x.com", "twitter.com"}},
	"other":   {Name: "other", Label: "Other"},
}

// platformAliases はフォームから来る表記揺れを正規名に寄せる。
var platformAliases = map[string]string{
	"twitter":  "x",
	"yt":       "youtube",
	"kick.com": "kick",
}

// CanonicalPlatform はプラットフォーム名を正規化する。未知の名前は小文字化のみ行う。
func CanonicalPlatform(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := platformAliases[n]; ok {
		return alias
	}
	return n
}

// LookupPlatform は名前からプラットフォーム定義を返す。
func LookupPlatform(name string) (Platform, bool) {
	p, ok := platforms[CanonicalPlatform(name)]
	return p, ok
}

// PlatformNames は選択可能なプラットフォーム名をソートして返す。
func PlatformNames() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Owns はチャンネルURLのホストがこのプラットフォームのドメインに属するかを判定する。
// www.twitch.tv や m.youtube.com のようなサブドメインは登録可能ドメインで比較する。
func (p Platform) Owns(rawURL string) bool {
	if len(p.Domains) == 0 {
		return true
	}
	domain, err := RegistrableDomain(rawURL)
	if err != nil {
		return false
	}
	for _, d := range p.Domains {
		if domain == d {
			return true
		}
	}
	return false
}

// RegistrableDomain はURLのホストから公開サフィックスリストに基づくeTLD+1を返す。
func RegistrableDomain(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	return publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
}
