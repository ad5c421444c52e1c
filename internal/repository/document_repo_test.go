package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/clip/internal/model"
)

// mockDocumentStore はテスト用のDocumentStoreモック。
type mockDocumentStore struct {
	createFn func(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (string, error)
}

func (m *mockDocumentStore) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (string, error) {
	return m.createFn(ctx, databaseID, collectionID, documentID, data)
}

func TestDocumentRepo_ImplementsInterfaces(t *testing.T) {
	var _ ProfileRepository = (*DocumentRepo)(nil)
	var _ LaunchRepository = (*DocumentRepo)(nil)
	var _ CampaignRepository = (*DocumentRepo)(nil)
	var _ DocumentStore = (*PostgresDocumentStore)(nil)
}

func TestDocumentRepo_CreateProfile_UsesProfilesCollection(t *testing.T) {
	var gotDB, gotCol, gotID string
	var gotData map[string]any
	store := &mockDocumentStore{
		createFn: func(_ context.Context, databaseID, collectionID, documentID string, data map[string]any) (string, error) {
			gotDB, gotCol, gotID, gotData = databaseID, collectionID, documentID, data
			return "doc-1", nil
		},
	}
	repo := NewDocumentRepo(store, Collections{DatabaseID: "main", Profiles: "profiles"})

	id, err := repo.CreateProfile(context.Background(), &model.Profile{
		UserID:    "user-1",
		UserType:  model.RoleClipper,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateProfile がエラーを返した: %v", err)
	}
	if id != "doc-1" || gotDB != "main" || gotCol != "profiles" {
		t.Errorf("id=%q db=%q col=%q", id, gotDB, gotCol)
	}
	if gotData["userId"] != "user-1" || gotData["userType"] != "clipper" {
		t.Errorf("data = %v", gotData)
	}
	if gotID != ProfileDocumentID("user-1") {
		t.Errorf("documentID = %q, want ID derived from the user", gotID)
	}
}

// TestProfileDocumentID はプロフィールのIDがユーザーごとに固定であることを検証する。
func TestProfileDocumentID(t *testing.T) {
	first := ProfileDocumentID("user-1")
	if first != ProfileDocumentID("user-1") {
		t.Error("同じユーザーには同じIDを返す")
	}
	if first == ProfileDocumentID("user-2") {
		t.Error("別ユーザーには別のIDを返す")
	}
	// Appwriteのドキュメント IDは36文字以内
	if len(first) > 36 {
		t.Errorf("len = %d, want <= 36", len(first))
	}
}

// TestDocumentRepo_CreateProfile_Duplicate は再試行で既存のプロフィールに当たった場合を検証する。
func TestDocumentRepo_CreateProfile_Duplicate(t *testing.T) {
	ids := map[string]bool{}
	store := &mockDocumentStore{
		createFn: func(_ context.Context, _, _, documentID string, _ map[string]any) (string, error) {
			if ids[documentID] {
				return "", ErrDuplicateDocument
			}
			ids[documentID] = true
			return documentID, nil
		},
	}
	repo := NewDocumentRepo(store, Collections{DatabaseID: "main", Profiles: "profiles"})
	profile := &model.Profile{UserID: "user-1", UserType: model.RoleStreamer}

	if _, err := repo.CreateProfile(context.Background(), profile); err != nil {
		t.Fatalf("CreateProfile がエラーを返した: %v", err)
	}
	if _, err := repo.CreateProfile(context.Background(), profile); !errors.Is(err, ErrDuplicateDocument) {
		t.Errorf("err = %v, want ErrDuplicateDocument", err)
	}
	if len(ids) != 1 {
		t.Errorf("documents = %d, want 1", len(ids))
	}
}

func TestDocumentRepo_LaunchesLetStoreAssignID(t *testing.T) {
	gotID := "unset"
	store := &mockDocumentStore{
		createFn: func(_ context.Context, _, _, documentID string, _ map[string]any) (string, error) {
			gotID = documentID
			return "doc-9", nil
		},
	}
	repo := NewDocumentRepo(store, Collections{DatabaseID: "main", Launches: "launches"})
	if _, err := repo.CreateLaunchEvent(context.Background(), &model.LaunchEvent{}); err != nil {
		t.Fatalf("CreateLaunchEvent がエラーを返した: %v", err)
	}
	if gotID != "" {
		t.Errorf("documentID = %q, want empty", gotID)
	}
}

func TestDocumentRepo_NotConfigured(t *testing.T) {
	called := false
	store := &mockDocumentStore{
		createFn: func(context.Context, string, string, string, map[string]any) (string, error) {
			called = true
			return "x", nil
		},
	}

	tests := []struct {
		name string
		cols Collections
	}{
		{"データベースID未設定", Collections{Launches: "launches"}},
		{"コレクション未設定", Collections{DatabaseID: "main"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewDocumentRepo(store, tt.cols)
			_, err := repo.CreateLaunchEvent(context.Background(), &model.LaunchEvent{})
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}
	if called {
		t.Error("未設定の場合はストアを呼び出してはならない")
	}

	repo := NewDocumentRepo(nil, Collections{DatabaseID: "main", Campaigns: "campaigns"})
	if _, err := repo.CreateRewardsCampaign(context.Background(), &model.RewardsCampaign{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ストアがnilの場合も ErrNotConfigured: %v", err)
	}
}

func TestDocumentRepo_WrapsStoreError(t *testing.T) {
	storeErr := errors.New("boom")
	store := &mockDocumentStore{
		createFn: func(context.Context, string, string, string, map[string]any) (string, error) {
			return "", storeErr
		},
	}
	repo := NewDocumentRepo(store, Collections{DatabaseID: "main", Campaigns: "campaigns"})

	_, err := repo.CreateRewardsCampaign(context.Background(), &model.RewardsCampaign{})
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}
