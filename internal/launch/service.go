// Package launch は配信者によるトークンローンチイベントの登録を提供する。
package launch

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
	Event *model.LaunchEvent
	// Persisted はドキュメントストアに保存されたか。
	Persisted bool
	// ImageStored は画像がBlob Storeに保存されたか。
	ImageStored bool
}

// Service はローンチイベントの登録を行う。
type Service struct {
	repo     repository.LaunchRepository
	images   ImageResolver
	observer SkipObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.LaunchRepository, images ImageResolver, observer SkipObserver, logger *slog.Logger) *Service {
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

// Create は入力を正規化・検証し、画像を保存してローンチイベントを登録する。
// 検証エラーの場合はエラー一覧を返し、画像のアップロードも行わない。
// 状態はscheduledで作成する。
func (s *Service) Create(ctx context.Context, creatorID string, input model.LaunchEventInput) (*Result, []string, error) {
	now := s.now()
	in := validation.NormalizeLaunchEvent(input)
	if errs := validation.ValidateLaunchEvent(in, now); len(errs) > 0 {
		return nil, errs, nil
	}
	scheduledAt, err := validation.ParseDate(in.ScheduledDate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse scheduled date: %w", err)
	}

	imageURL, stored, err := s.images.Resolve(ctx, in.Image, in.ImageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store launch image: %w", err)
	}
	if !stored {
		s.skipped("launch_image", creatorID)
	}

	event := &model.LaunchEvent{
		CreatorID:      creatorID,
		StreamerName:   in.StreamerName,
		LaunchTitle:    in.LaunchTitle,
		TokenName:      in.TokenName,
		TokenSymbol:    in.TokenSymbol,
		Description:    in.Description,
		ScheduledAt:    scheduledAt,
		StreamPlatform: in.StreamPlatform,
		StreamURL:      in.StreamURL,
		ImageURL:       imageURL,
		Status:         model.LaunchStatusScheduled,
		CreatedAt:      now,
	}
	result := &Result{Event: event, ImageStored: stored}

	id, err := s.repo.CreateLaunchEvent(ctx, event)
	switch {
	case errors.Is(err, repository.ErrNotConfigured):
		s.skipped("launch_event", creatorID)
	case err != nil:
		return nil, nil, err
	default:
		event.ID = id
		result.Persisted = true
		s.logger.Info("launch event created",
			slog.String("launch_id", id),
			slog.String("creator_id", creatorID),
			slog.String("token_symbol", event.TokenSymbol),
		)
	}
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
