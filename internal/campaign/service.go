// Package campaign はクリエイターによるリワードキャンペーンの登録を提供する。
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/repository"
	"github.com/hitoshi/clip/internal/validation"
)

// ImageResolver は添付画像または画像URLを保存して表示用URLを返す。
type ImageResolver interface {
	Resolve(ctx context.Context, up *model.Upload, rawURL string) (url string, stored bool, err error)
}

// SkipObserver は保存先未設定によるスキップを受け取る。
type SkipObserver interface {
	ObservePersistenceSkipped(kind string)
}

// Result は登録結果。
type Result struct {
	Campaign    *model.RewardsCampaign
	Persisted   bool
	ImageStored bool
}

// Service はリワードキャンペーンの登録を行う。
type Service struct {
	repo     repository.CampaignRepository
	images   ImageResolver
	observer SkipObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.CampaignRepository, images ImageResolver, observer SkipObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		images:   images,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Create はキャンペーンを登録する。
// 下書き指定の場合はdraft、それ以外はactiveで作成する。
func (s *Service) Create(ctx context.Context, creatorID string, input model.RewardsCampaignInput) (*Result, []string, error) {
	now := s.now()
	in := validation.NormalizeRewardsCampaign(input)
	if errs := validation.ValidateRewardsCampaign(in, now); len(errs) > 0 {
		return nil, errs, nil
	}
	endsAt, err := validation.ParseDate(in.CampaignEndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse campaign end date: %w", err)
	}

	imageURL, stored, err := s.images.Resolve(ctx, in.Image, in.ImageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store campaign image: %w", err)
	}
	if !stored {
		s.skipped("campaign_image", creatorID)
	}

	status := model.CampaignStatusActive
	if in.Draft {
		status = model.CampaignStatusDraft
	}
	c := &model.RewardsCampaign{
		CreatorID:        creatorID,
		CampaignTitle:    in.CampaignTitle,
		CreatorName:      in.CreatorName,
		Description:      in.Description,
		PrizePool:        in.PrizePool,
		PayoutPer1kViews: in.PayoutPer1kViews,
		EndsAt:           endsAt,
		Requirements:     in.Requirements,
		ImageURL:         imageURL,
		Status:           status,
		CreatedAt:        now,
	}
	result := &Result{Campaign: c, ImageStored: stored}

	id, err := s.repo.CreateRewardsCampaign(ctx, c)
	if errors.Is(err, repository.ErrNotConfigured) {
		s.skipped("rewards_campaign", creatorID)
		return result, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	c.ID = id
	result.Persisted = true
	s.logger.Info("rewards campaign created",
		slog.String("campaign_id", id),
		slog.String("creator_id", creatorID),
		slog.String("status", string(status)),
	)
	return result, nil, nil
}

func (s *Service) skipped(kind, creatorID string) {
	if s.observer != nil {
		s.observer.ObservePersistenceSkipped(kind)
	}
	s.logger.Warn("persistence skipped: storage is not configured",
		slog.String("kind", kind),
		slog.String("user_id", creatorID),
	)
}
