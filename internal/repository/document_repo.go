package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/clip/internal/model"
)

// Collections はドキュメントの保存先IDの組。
// 空のIDは「未設定」として扱う。
type Collections struct {
	DatabaseID string
	Profiles   string
	Launches   string
	Campaigns  string
}

// DocumentRepo はDocumentStoreの上に型付きのリポジトリを提供する。
type DocumentRepo struct {
	store       DocumentStore
	collections Collections
}

// NewDocumentRepo はDocumentRepoを生成する。
func NewDocumentRepo(store DocumentStore, collections Collections) *DocumentRepo {
	return &DocumentRepo{store: store, collections: collections}
}

// ProfileDocumentID はユーザーのプロフィールのドキュメントIDを返す。
// ユーザーIDから決まるUUIDなので、再試行で2件目が作られることはない。
func ProfileDocumentID(userID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("clip/profiles/"+userID)).String()
}

// CreateProfile はプロフィールを保存する。既に保存済みならErrDuplicateDocumentを返す。
func (r *DocumentRepo) CreateProfile(ctx context.Context, profile *model.Profile) (string, error) {
	return r.create(ctx, r.collections.Profiles, ProfileDocumentID(profile.UserID), "profile", profile.Fields())
}

// CreateLaunchEvent はローンチイベントを保存する。
func (r *DocumentRepo) CreateLaunchEvent(ctx context.Context, event *model.LaunchEvent) (string, error) {
	return r.create(ctx, r.collections.Launches, "", "launch event", event.Fields())
}

// CreateRewardsCampaign はリワードキャンペーンを保存する。
func (r *DocumentRepo) CreateRewardsCampaign(ctx context.Context, campaign *model.RewardsCampaign) (string, error) {
	return r.create(ctx, r.collections.Campaigns, "", "rewards campaign", campaign.Fields())
}

func (r *DocumentRepo) create(ctx context.Context, collectionID, documentID, kind string, data map[string]any) (string, error) {
	if r.store == nil || r.collections.DatabaseID == "" || collectionID == "" {
		return "", ErrNotConfigured
	}
	id, err := r.store.CreateDocument(ctx, r.collections.DatabaseID, collectionID, documentID, data)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return id, nil
}
