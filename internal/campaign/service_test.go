package campaign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/repository"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type mockCampaignRepo struct {
	createFn func(ctx context.Context, c *model.RewardsCampaign) (string, error)
	saved    []*model.RewardsCampaign
}

func (m *mockCampaignRepo) CreateRewardsCampaign(ctx context.Context, c *model.RewardsCampaign) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	m.saved = append(m.saved, c)
	return "campaign-1", nil
}

type mockResolver struct {
	resolveFn func(ctx context.Context, up *model.Upload, rawURL string) (string, bool, error)
	calls     int
}

func (m *mockResolver) Resolve(ctx context.Context, up *model.Upload, rawURL string) (string, bool, error) {
	m.calls++
	if m.resolveFn != nil {
		return m.resolveFn(ctx, up, rawURL)
	}
	return "https://files.example/campaign.png", true, nil
}

type skipRecorder struct{ kinds []string }

func (r *skipRecorder) ObservePersistenceSkipped(kind string) { r.kinds = append(r.kinds, kind) }

func newTestService(repo *mockCampaignRepo, images *mockResolver, obs *skipRecorder) *Service {
	s := NewService(repo, images, obs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	return s
}

func validInput() model.RewardsCampaignInput {
	return model.RewardsCampaignInput{
		CampaignTitle:    "Best moments",
		CreatorName:      "Ana",
		PrizePool:        500,
		PayoutPer1kViews: 2.5,
		CampaignEndDate:  "2026-12-01",
		Requirements:     []string{" Tag @ana ", "", "Tag @ana", "Vertical only"},
		Image:            &model.Upload{Filename: "c.png", Data: []byte("png")},
	}
}

func TestService_Create(t *testing.T) {
	tests := []struct {
		name   string
		draft  bool
		status model.CampaignStatus
	}{
		{"公開", false, model.CampaignStatusActive},
		{"下書き", true, model.CampaignStatusDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCampaignRepo{}
			s := newTestService(repo, &mockResolver{}, &skipRecorder{})

			in := validInput()
			in.Draft = tt.draft
			res, errs, err := s.Create(context.Background(), "user-9", in)
			if err != nil || len(errs) != 0 {
				t.Fatalf("errs=%v err=%v", errs, err)
			}
			c := res.Campaign
			if c.Status != tt.status {
				t.Errorf("Status = %q, want %q", c.Status, tt.status)
			}
			if c.ID != "campaign-1" || !res.Persisted || !res.ImageStored {
				t.Errorf("result = %+v", res)
			}
			if len(c.Requirements) != 2 || c.Requirements[0] != "Tag @ana" || c.Requirements[1] != "Vertical only" {
				t.Errorf("Requirements = %v", c.Requirements)
			}
			if !c.EndsAt.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("EndsAt = %v", c.EndsAt)
			}
		})
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	images := &mockResolver{}
	s := newTestService(&mockCampaignRepo{}, images, nil)

	in := validInput()
	in.PrizePool = 0
	in.PayoutPer1kViews = -1

	_, errs, err := s.Create(context.Background(), "user-9", in)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	want := []string{"Prize Pool must be greater than 0", "Payout per 1,000 views must be greater than 0"}
	if len(errs) != len(want) || errs[0] != want[0] || errs[1] != want[1] {
		t.Errorf("errs = %v", errs)
	}
	if images.calls != 0 {
		t.Error("検証エラー時は画像を保存しない")
	}
}

func TestService_Create_NotConfigured(t *testing.T) {
	obs := &skipRecorder{}
	s := newTestService(&mockCampaignRepo{createFn: func(context.Context, *model.RewardsCampaign) (string, error) {
		return "", repository.ErrNotConfigured
	}}, &mockResolver{}, obs)

	res, _, err := s.Create(context.Background(), "user-9", validInput())
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if res.Persisted || res.Campaign.ID != "" {
		t.Errorf("result = %+v", res)
	}
	if len(obs.kinds) != 1 || obs.kinds[0] != "rewards_campaign" {
		t.Errorf("skipped = %v", obs.kinds)
	}
}

func TestService_Create_RepoError(t *testing.T) {
	repoErr := errors.New("insert failed")
	s := newTestService(&mockCampaignRepo{createFn: func(context.Context, *model.RewardsCampaign) (string, error) {
		return "", repoErr
	}}, &mockResolver{}, nil)

	if _, _, err := s.Create(context.Background(), "user-9", validInput()); !errors.Is(err, repoErr) {
		t.Errorf("err = %v", err)
	}
}
