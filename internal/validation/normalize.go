package validation

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/security"
)

// plainText はフリーテキストからすべてのHTMLを除去するポリシー。
// bluemondayのポリシーはスレッドセーフなためパッケージで共有する。
var plainText = bluemonday.StrictPolicy()

// SanitizeText は前後の空白を除去し、マークアップを取り除いたテキストを返す。
// StrictPolicyがエスケープした実体参照は平文に戻す。表示時のエスケープはUI側が行う。
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(strings.TrimSpace(s))))
}

// NormalizeProfile はプロフィールフォームを保存前の形に整える。
// 画像フィールドはそのまま保持する。
func NormalizeProfile(f model.ProfileForm) model.ProfileForm {
	f.DisplayName = SanitizeText(f.DisplayName)
	f.Bio = SanitizeText(f.Bio)
	f.Niches = normalizeList(f.Niches)
	f.Platforms = normalizeList(f.Platforms)
	if f.StreamingPlatform != "" {
		f.StreamingPlatform = CanonicalPlatform(f.StreamingPlatform)
	}
	f.ChannelURL = strings.TrimSpace(f.ChannelURL)
	f.AgencyName = SanitizeText(f.AgencyName)
	f.ContactEmail = strings.ToLower(strings.TrimSpace(f.ContactEmail))
	f.Website = strings.TrimSpace(f.Website)
	return f
}

// NormalizeLaunchEvent はローンチイベント入力を保存前の形に整える。
// トークンシンボルは先頭の$を除いて大文字にする。説明文は限定的なHTMLを残す。
func NormalizeLaunchEvent(e model.LaunchEventInput) model.LaunchEventInput {
	e.StreamerName = SanitizeText(e.StreamerName)
	e.LaunchTitle = SanitizeText(e.LaunchTitle)
	e.TokenName = SanitizeText(e.TokenName)
	e.TokenSymbol = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(e.TokenSymbol), "$"))
	e.Description = security.SanitizeRichText(e.Description)
	e.ScheduledDate = strings.TrimSpace(e.ScheduledDate)
	if e.StreamPlatform != "" {
		e.StreamPlatform = CanonicalPlatform(e.StreamPlatform)
	}
	e.StreamURL = strings.TrimSpace(e.StreamURL)
	e.ImageURL = strings.TrimSpace(e.ImageURL)
	return e
}

// NormalizeRewardsCampaign はキャンペーン入力を保存前の形に整える。
func NormalizeRewardsCampaign(c model.RewardsCampaignInput) model.RewardsCampaignInput {
	c.CampaignTitle = SanitizeText(c.CampaignTitle)
	c.CreatorName = SanitizeText(c.CreatorName)
	c.Description = security.SanitizeRichText(c.Description)
	c.CampaignEndDate = strings.TrimSpace(c.CampaignEndDate)
	c.Requirements = normalizeList(c.Requirements)
	c.ImageURL = strings.TrimSpace(c.ImageURL)
	return c
}

// normalizeList は各要素をサニタイズし、空要素と重複を除く。順序は保持する。
func normalizeList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = SanitizeText(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
