// Package cleanup は放置された訪問の破棄ジョブを提供する。
// 一定時間操作のない訪問のControllerを閉じ、購読中のイベントストリームを終了させる。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper はアイドルな訪問を破棄する。*session.Registryが実装する。
type Sweeper interface {
	Sweep(idle time.Duration, now time.Time) int
	Len() int
}

// CleanupJob はアイドルな訪問の定期破棄ジョブ。
type CleanupJob struct {
	visits  Sweeper
	logger  *slog.Logger
	IdleTTL time.Duration // 最後の操作からの猶予（デフォルト: 30分）
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(visits Sweeper, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		visits:  visits,
		logger:  logger,
		IdleTTL: 30 * time.Minute,
		now:     time.Now,
	}
}

// Run はIdleTTL以上操作されていない訪問を1回破棄し、件数を返す。
// 冪等: 対象がない場合は0を返す。
func (j *CleanupJob) Run(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	start := time.Now()
	removed := j.visits.Sweep(j.IdleTTL, j.now())
	if removed == 0 {
		return 0
	}
	j.logger.Info("idle visits swept",
		slog.Int("removed", removed),
		slog.Int("remaining", j.visits.Len()),
		slog.Duration("idle_ttl", j.IdleTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return removed
}

// Start はinterval間隔で破棄を実行する。コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("visit cleanup started",
		slog.Duration("interval", interval),
		slog.Duration("idle_ttl", j.IdleTTL),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("visit cleanup stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
