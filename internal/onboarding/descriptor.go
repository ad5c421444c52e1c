// Package onboarding は役割別オンボーディングウィザードの汎用エンジンを提供する。
//
// 役割ごとの差分はDescriptor（ステップ列とプロフィール整形関数）として表現し、
// ウィザードの進行ロジックは全役割で共通とする。
package onboarding

import (
	"fmt"
	"time"

	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/validation"
)

// Step はウィザードの1ステップ。
type Step struct {
	ID     string
	Title  string
	Fields []string
}

// Validate はこのステップが扱うフィールドだけを検証する。
func (s Step) Validate(role model.Role, f model.ProfileForm) []string {
	return validation.ValidateProfileFields(role, f, s.Fields...)
}

// 画像の種類。
const (
	ImageAvatar = "avatar"
	ImageBanner = "banner"
	ImageLogo   = "logo"
)

// ImageURLs はアップロード済み画像のURL。
type ImageURLs struct {
	Avatar string
	Banner string
	Logo   string
}

// Descriptor は役割ごとのウィザード定義。
type Descriptor struct {
	Role  model.Role
	Steps []Step
	// Images はこの役割で保存する画像の種類。
	Images []string
	// Shape は正規化・検証済みフォームを保存用のProfileに整形する。
	Shape func(userID string, f model.ProfileForm, images ImageURLs, now time.Time) *model.Profile
}

var descriptors = map[model.Role]Descriptor{
	model.RoleClipper: {
		Role: model.RoleClipper,
		Steps: []Step{
			{ID: "basics", Title: "About you", Fields: []string{"displayName", "bio"}},
			{ID: "interests", Title: "What do you clip?", Fields: []string{"niches", "platforms"}},
		},
		Images: []string{ImageAvatar},
		Shape: func(userID string, f model.ProfileForm, images ImageURLs, now time.Time) *model.Profile {
			p := baseProfile(userID, model.RoleClipper, f, images, now)
			p.Niches = f.Niches
			p.Platforms = f.Platforms
			return p
		},
	},
	model.RoleStreamer: {
		Role: model.RoleStreamer,
		Steps: []Step{
			{ID: "basics", Title: "About you", Fields: []string{"displayName", "bio"}},
			{ID: "channel", Title: "Your channel", Fields: []string{"streamingPlatform", "channelUrl", "audienceSize"}},
		},
		Images: []string{ImageAvatar, ImageBanner},
		Shape: func(userID string, f model.ProfileForm, images ImageURLs, now time.Time) *model.Profile {
			p := baseProfile(userID, model.RoleStreamer, f, images, now)
			p.StreamingPlatform = f.StreamingPlatform
			p.ChannelURL = f.ChannelURL
			p.AudienceSize = f.AudienceSize
			p.BannerURL = images.Banner
			return p
		},
	},
	model.RoleAgency: {
		Role: model.RoleAgency,
		Steps: []Step{
			{ID: "agency", Title: "Your agency", Fields: []string{"agencyName", "website"}},
			{ID: "contact", Title: "Contact details", Fields: []string{"contactEmail", "displayName", "bio"}},
		},
		Images: []string{ImageAvatar, ImageLogo},
		Shape: func(userID string, f model.ProfileForm, images ImageURLs, now time.Time) *model.Profile {
			p := baseProfile(userID, model.RoleAgency, f, images, now)
			p.AgencyName = f.AgencyName
			p.ContactEmail = f.ContactEmail
			p.Website = f.Website
			p.LogoURL = images.Logo
			return p
		},
	},
}

// PendingImages はフォームに添付された画像のうち、この役割で保存するものを返す。
func (d Descriptor) PendingImages(f model.ProfileForm) map[string]*model.Upload {
	all := map[string]*model.Upload{
		ImageAvatar: f.Avatar,
		ImageBanner: f.Banner,
		ImageLogo:   f.Logo,
	}
	out := make(map[string]*model.Upload, len(d.Images))
	for _, kind := range d.Images {
		if up := all[kind]; up != nil {
			out[kind] = up
		}
	}
	return out
}

// ImageURLsFrom はアップロード結果をImageURLsに変換する。
func ImageURLsFrom(urls map[string]string) ImageURLs {
	return ImageURLs{
		Avatar: urls[ImageAvatar],
		Banner: urls[ImageBanner],
		Logo:   urls[ImageLogo],
	}
}

// DescriptorFor は役割に対応するウィザード定義を返す。
func DescriptorFor(role model.Role) (Descriptor, error) {
	d, ok := descriptors[role]
	if !ok {
		return Descriptor{}, fmt.Errorf("no onboarding descriptor for role %q", role)
	}
	return d, nil
}

func baseProfile(userID string, role model.Role, f model.ProfileForm, images ImageURLs, now time.Time) *model.Profile {
	return &model.Profile{
		UserID:      userID,
		UserType:    role,
		DisplayName: f.DisplayName,
		Bio:         f.Bio,
		AvatarURL:   images.Avatar,
		CreatedAt:   now,
	}
}
