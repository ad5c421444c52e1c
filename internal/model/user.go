// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role はユーザーがオンボーディングで選択する役割を表す。
type Role string

const (
	// RoleClipper はクリップを制作して報酬を得るユーザー。
	RoleClipper Role = "clipper"
	// RoleStreamer はトークンローンチ配信を行う配信者。
	RoleStreamer Role = "streamer"
	// RoleAgency は複数のクリエイターを束ねるエージェンシー。
	RoleAgency Role = "agency"
)

// Roles は選択可能な役割の一覧。
var Roles = []Role{RoleClipper, RoleStreamer, RoleAgency}

// ParseRole は文字列を役割に変換する。未知の値はエラーを返す。
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// User はIdentity Providerが保持するアカウントを表す。
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	Prefs         Preferences
	RegisteredAt  time.Time
}

// preference bag のキー。
const (
	PrefOnboardingCompleted = "onboardingCompleted"
	PrefUserType            = "userType"
)

// Preferences はIdentity Providerのpreference bagを型付けした構造体。
// 既知のキー以外はExtraに保持し、書き戻し時に失わないようにする。
type Preferences struct {
	OnboardingCompleted bool
	UserType            Role
	Extra               map[string]any
}

// ParsePreferences はpreference bagを読み取り境界で検証してPreferencesに変換する。
// 型の合わない既知キーはゼロ値として扱う。
func ParsePreferences(raw map[string]any) Preferences {
	p := Preferences{Extra: map[string]any{}}
	for k, v := range raw {
		switch k {
		case PrefOnboardingCompleted:
			switch b := v.(type) {
			case bool:
				p.OnboardingCompleted = b
			case string:
				p.OnboardingCompleted = b == "true"
			}
		case PrefUserType:
			if s, ok := v.(string); ok {
				if r, err := ParseRole(s); err == nil {
					p.UserType = r
				}
			}
		default:
			p.Extra[k] = v
		}
	}
	return p
}

// Map はPreferencesをpreference bagの形式に戻す。
func (p Preferences) Map() map[string]any {
	m := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		m[k] = v
	}
	m[PrefOnboardingCompleted] = p.OnboardingCompleted
	if p.UserType != "" {
		m[PrefUserType] = string(p.UserType)
	}
	return m
}

// ProviderSession はIdentity Providerで作成されたログインセッションを表す。
// Secretはユーザースコープの呼び出しに使用する。
type ProviderSession struct {
	ID        string
	UserID    string
	Secret    string
	ExpiresAt time.Time
}
