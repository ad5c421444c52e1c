// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/clip/internal/model"
)

// ErrNotConfigured は保存先のデータベースやコレクションが設定されていないことを示す。
// 呼び出し側は保存をスキップし、結果に未保存であることを反映する。
var ErrNotConfigured = errors.New("document collection is not configured")

// ErrDuplicateDocument は同じIDのドキュメントが既に存在することを示す。
var ErrDuplicateDocument = errors.New("document already exists")

// DocumentStore はスキーマレスなドキュメントの保存先。
// Appwrite DatabasesとPostgreSQLの2つの実装がある。
type DocumentStore interface {
	// CreateDocument はドキュメントを作成し、そのIDを返す。
	// documentIDが空なら保存先で採番する。同じIDが既にあればErrDuplicateDocumentを返す。
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (string, error)
}

// ProfileRepository はオンボーディング完了時のプロフィール保存インターフェース。
type ProfileRepository interface {
	// CreateProfile はプロフィールを保存し、ドキュメントIDを返す。
	CreateProfile(ctx context.Context, profile *model.Profile) (string, error)
}

// LaunchRepository はローンチイベントの保存インターフェース。
type LaunchRepository interface {
	CreateLaunchEvent(ctx context.Context, event *model.LaunchEvent) (string, error)
}

// CampaignRepository はリワードキャンペーンの保存インターフェース。
type CampaignRepository interface {
	CreateRewardsCampaign(ctx context.Context, campaign *model.RewardsCampaign) (string, error)
}
