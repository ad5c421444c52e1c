// Package validation はフォームデータを保存前に検証・正規化する純粋関数を提供する。
//
// 検証関数はエラーメッセージの一覧を返し、空の一覧は有効を意味する。
// メッセージはフィールドの宣言順に並び、利用者にそのまま表示できる文言とする。
// 副作用はなく、同じ入力と時刻に対して常に同じ結果を返す。
package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/clip/internal/model"
)

// 文字数の上限。
const (
	MaxDisplayNameLength = 50
	MaxBioLength         = 500
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000
)

// dateLayouts は日付フィールドとして受け付ける書式。
// datetime-local入力の秒なし書式と日付のみの書式を含む。
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate はフォームから受け取った日付文字列をパースする。
// タイムゾーンを含まない書式はUTCとして扱う。
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date: %q", s)
}

// ValidateLaunchEvent はローンチイベントの部分レコードを検証する。
func ValidateLaunchEvent(e model.LaunchEventInput, now time.Time) []string {
	var errs []string

	if isBlank(e.StreamerName) {
		errs = append(errs, "Streamer name is required")
	}
	if isBlank(e.LaunchTitle) {
		errs = append(errs, "Launch title is required")
	} else if len([]rune(strings.TrimSpace(e.LaunchTitle))) > MaxTitleLength {
		errs = append(errs, fmt.Sprintf("Launch title must be %d characters or fewer", MaxTitleLength))
	}
	if isBlank(e.TokenSymbol) {
		errs = append(errs, "Token symbol is required")
	} else if !isTokenSymbol(strings.TrimSpace(e.TokenSymbol)) {
		errs = append(errs, "Token symbol must be 2 to 10 letters or digits")
	}
	if len([]rune(e.Description)) > MaxDescriptionLength {
		errs = append(errs, fmt.Sprintf("Description must be %d characters or fewer", MaxDescriptionLength))
	}
	errs = appendFutureDateErrors(errs, "Scheduled date", e.ScheduledDate, now)
	if !isBlank(e.StreamURL) && !isHTTPURL(e.StreamURL) {
		errs = append(errs, "Stream URL must be a valid http or https link")
	}
	if e.Image == nil && isBlank(e.ImageURL) {
		errs = append(errs, "Launch image is required")
	}

	return errs
}

// ValidateRewardsCampaign はリワードキャンペーンの部分レコードを検証する。
func ValidateRewardsCampaign(c model.RewardsCampaignInput, now time.Time) []string {
	var errs []string

	if isBlank(c.CampaignTitle) {
		errs = append(errs, "Campaign title is required")
	} else if len([]rune(strings.TrimSpace(c.CampaignTitle))) > MaxTitleLength {
		errs = append(errs, fmt.Sprintf("Campaign title must be %d characters or fewer", MaxTitleLength))
	}
	if isBlank(c.CreatorName) {
		errs = append(errs, "Creator name is required")
	}
	if len([]rune(c.Description)) > MaxDescriptionLength {
		errs = append(errs, fmt.Sprintf("Description must be %d characters or fewer", MaxDescriptionLength))
	}
	if !(c.PrizePool > 0) {
		errs = append(errs, "Prize Pool must be greater than 0")
	}
	if !(c.PayoutPer1kViews > 0) {
		errs = append(errs, "Payout per 1,000 views must be greater than 0")
	}
	errs = appendFutureDateErrors(errs, "Campaign end date", c.CampaignEndDate, now)
	if c.Image == nil && isBlank(c.ImageURL) {
		errs = append(errs, "Campaign image is required")
	}

	return errs
}

// ProfileRule はプロフィールの1フィールドに対する検証規則。
// Checkは問題がなければ空文字列を返す。
type ProfileRule struct {
	Field string
	Check func(f model.ProfileForm) string
}

var commonProfileRules = []ProfileRule{
	{Field: "displayName", Check: func(f model.ProfileForm) string {
		if len([]rune(strings.TrimSpace(f.DisplayName))) > MaxDisplayNameLength {
			return fmt.Sprintf("Display name must be %d characters or fewer", MaxDisplayNameLength)
		}
		return ""
	}},
	{Field: "bio", Check: func(f model.ProfileForm) string {
		if len([]rune(strings.TrimSpace(f.Bio))) > MaxBioLength {
			return fmt.Sprintf("Bio must be %d characters or fewer", MaxBioLength)
		}
		return ""
	}},
}

// profileRules は役割ごとの検証規則。宣言順がエラーの並び順になる。
var profileRules = map[model.Role][]ProfileRule{
	model.RoleClipper: {},
	model.RoleStreamer: {
		{Field: "streamingPlatform", Check: func(f model.ProfileForm) string {
			if isBlank(f.StreamingPlatform) {
				return "Streaming platform is required"
			}
			if _, ok := LookupPlatform(f.StreamingPlatform); !ok {
				return "Streaming platform must be one of " + strings.Join(PlatformNames(), ", ")
			}
			return ""
		}},
		{Field: "channelUrl", Check: func(f model.ProfileForm) string {
			if isBlank(f.ChannelURL) {
				return ""
			}
			if !isHTTPURL(f.ChannelURL) {
				return "Channel URL must be a valid http or https link"
			}
			p, ok := LookupPlatform(f.StreamingPlatform)
			if ok && !p.Owns(f.ChannelURL) {
				return fmt.Sprintf("Channel URL must be a %s link", p.Label)
			}
			return ""
		}},
		{Field: "audienceSize", Check: func(f model.ProfileForm) string {
			if f.AudienceSize < 0 {
				return "Audience size cannot be negative"
			}
			return ""
		}},
	},
	model.RoleAgency: {
		{Field: "agencyName", Check: func(f model.ProfileForm) string {
			if isBlank(f.AgencyName) {
				return "Agency name is required"
			}
			return ""
		}},
		{Field: "contactEmail", Check: func(f model.ProfileForm) string {
			if isBlank(f.ContactEmail) {
				return "Contact email is required"
			}
			if !isEmail(f.ContactEmail) {
				return "Contact email must be a valid email address"
			}
			return ""
		}},
		{Field: "website", Check: func(f model.ProfileForm) string {
			if !isBlank(f.Website) && !isHTTPURL(f.Website) {
				return "Website must be a valid http or https link"
			}
			return ""
		}},
	},
}

// ValidateProfileByType は役割に応じたプロフィールの必須項目と形式を検証する。
func ValidateProfileByType(role model.Role, f model.ProfileForm) []string {
	rules, ok := profileRules[role]
	if !ok {
		return []string{"Please select a valid role"}
	}
	var errs []string
	for _, r := range commonProfileRules {
		if msg := r.Check(f); msg != "" {
			errs = append(errs, msg)
		}
	}
	for _, r := range rules {
		if msg := r.Check(f); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

// ValidateProfileFields は指定フィールドに限定してプロフィールを検証する。
// オンボーディングウィザードの各ステップで使用する。
func ValidateProfileFields(role model.Role, f model.ProfileForm, fields ...string) []string {
	want := make(map[string]struct{}, len(fields))
	for _, name := range fields {
		want[name] = struct{}{}
	}
	var errs []string
	for _, r := range append(append([]ProfileRule{}, commonProfileRules...), profileRules[role]...) {
		if _, ok := want[r.Field]; !ok {
			continue
		}
		if msg := r.Check(f); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func appendFutureDateErrors(errs []string, label, value string, now time.Time) []string {
	if isBlank(value) {
		return append(errs, label+" is required")
	}
	t, err := ParseDate(value)
	if err != nil {
		return append(errs, label+" is not a valid date")
	}
	if !t.After(now) {
		return append(errs, label+" must be in the future")
	}
	return errs
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func isTokenSymbol(s string) bool {
	if len(s) < 2 || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
