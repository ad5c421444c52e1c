package model

import "time"

// Upload はアップロード待ちの画像ファイルを表す。
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProfileForm はオンボーディングウィザードで入力されるフォームデータ。
// 役割ごとに使うフィールドが異なる。
type ProfileForm struct {
	// 共通
	DisplayName string
	Bio         string

	// クリッパー
	Niches    []string
	Platforms []string

	// 配信者
	StreamingPlatform string
	ChannelURL        string
	AudienceSize      int

	// エージェンシー
	AgencyName   string
	ContactEmail string
	Website      string

	// 画像
	Avatar *Upload
	Banner *Upload
	Logo   *Upload
}

// Merge はpatchの非ゼロ値でフォームを上書きした新しいフォームを返す。
func (f ProfileForm) Merge(patch ProfileForm) ProfileForm {
	out := f
	setString(&out.DisplayName, patch.DisplayName)
	setString(&out.Bio, patch.Bio)
	if patch.Niches != nil {
		out.Niches = patch.Niches
	}
	if patch.Platforms != nil {
		out.Platforms = patch.Platforms
	}
	setString(&out.StreamingPlatform, patch.StreamingPlatform)
	setString(&out.ChannelURL, patch.ChannelURL)
	if patch.AudienceSize != 0 {
		out.AudienceSize = patch.AudienceSize
	}
	setString(&out.AgencyName, patch.AgencyName)
	setString(&out.ContactEmail, patch.ContactEmail)
	setString(&out.Website, patch.Website)
	if patch.Avatar != nil {
		out.Avatar = patch.Avatar
	}
	if patch.Banner != nil {
		out.Banner = patch.Banner
	}
	if patch.Logo != nil {
		out.Logo = patch.Logo
	}
	return out
}

// Assign はfieldsに挙げたフィールドをpatchの値で置き換えた新しいフォームを返す。
// Mergeと違いゼロ値でも上書きするため、任意項目を空に戻せる。
// フィールド名はJSONの名前（displayName, channelUrl など）。画像は対象外。
func (f ProfileForm) Assign(patch ProfileForm, fields ...string) ProfileForm {
	out := f
	for _, field := range fields {
		switch field {
		case "displayName":
			out.DisplayName = patch.DisplayName
		case "bio":
			out.Bio = patch.Bio
		case "niches":
			out.Niches = patch.Niches
		case "platforms":
			out.Platforms = patch.Platforms
		case "streamingPlatform":
			out.StreamingPlatform = patch.StreamingPlatform
		case "channelUrl":
			out.ChannelURL = patch.ChannelURL
		case "audienceSize":
			out.AudienceSize = patch.AudienceSize
		case "agencyName":
			out.AgencyName = patch.AgencyName
		case "contactEmail":
			out.ContactEmail = patch.ContactEmail
		case "website":
			out.Website = patch.Website
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Profile はオンボーディング完了時に一度だけ書き込まれる役割付きプロフィール。
type Profile struct {
	UserID      string
	UserType    Role
	DisplayName string
	Bio         string
	AvatarURL   string

	Niches    []string
	Platforms []string

	StreamingPlatform string
	ChannelURL        string
	AudienceSize      int
	BannerURL         string

	AgencyName   string
	ContactEmail string
	Website      string
	LogoURL      string

	CreatedAt time.Time
}

// Fields はドキュメントストアに保存するフィールドを返す。
// 役割に関係しない空フィールドは含めない。
func (p *Profile) Fields() map[string]any {
	f := map[string]any{
		"userId":    p.UserID,
		"userType":  string(p.UserType),
		"createdAt": p.CreatedAt.UTC().Format(time.RFC3339),
	}
	putString(f, "displayName", p.DisplayName)
	putString(f, "bio", p.Bio)
	putString(f, "avatarUrl", p.AvatarURL)
	switch p.UserType {
	case RoleClipper:
		f["niches"] = nonNil(p.Niches)
		f["platforms"] = nonNil(p.Platforms)
	case RoleStreamer:
		f["streamingPlatform"] = p.StreamingPlatform
		putString(f, "channelUrl", p.ChannelURL)
		if p.AudienceSize > 0 {
			f["audienceSize"] = p.AudienceSize
		}
		putString(f, "bannerUrl", p.BannerURL)
	case RoleAgency:
		f["agencyName"] = p.AgencyName
		f["contactEmail"] = p.ContactEmail
		putString(f, "website", p.Website)
		putString(f, "logoUrl", p.LogoURL)
	}
	return f
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
