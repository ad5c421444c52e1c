package model

import "time"

// LaunchStatus はローンチイベントのライフサイクル状態。
// 作成時にscheduledが設定され、以降の遷移は管理側のプロセスが行う。
type LaunchStatus string

const (
	LaunchStatusScheduled LaunchStatus = "scheduled"
	LaunchStatusLive      LaunchStatus = "live"
	LaunchStatusCompleted LaunchStatus = "completed"
	LaunchStatusCancelled LaunchStatus = "cancelled"
)

// LaunchEventInput は配信者が入力するローンチイベントの部分レコード。
// 日付はフォームから受け取った文字列のまま保持し、検証時にパースする。
type LaunchEventInput struct {
	StreamerName   string
	LaunchTitle    string
	TokenName      string
	TokenSymbol    string
	Description    string
	ScheduledDate  string
	StreamPlatform string
	StreamURL      string
	ImageURL       string
	Image          *Upload
}

// LaunchEvent は保存済みのローンチイベント。
type LaunchEvent struct {
	ID             string
	CreatorID      string
	StreamerName   string
	LaunchTitle    string
	TokenName      string
	TokenSymbol    string
	Description    string
	ScheduledAt    time.Time
	StreamPlatform string
	StreamURL      string
	ImageURL       string
	Status         LaunchStatus
	CreatedAt      time.Time
}

// Fields はドキュメントストアに保存するフィールドを返す。
func (e *LaunchEvent) Fields() map[string]any {
	f := map[string]any{
		"creatorId":     e.CreatorID,
		"streamerName":  e.StreamerName,
		"launchTitle":   e.LaunchTitle,
		"tokenName":     e.TokenName,
		"tokenSymbol":   e.TokenSymbol,
		"scheduledDate": e.ScheduledAt.UTC().Format(time.RFC3339),
		"imageUrl":      e.ImageURL,
		"status":        string(e.Status),
		"createdAt":     e.CreatedAt.UTC().Format(time.RFC3339),
	}
	putString(f, "description", e.Description)
	putString(f, "streamPlatform", e.StreamPlatform)
	putString(f, "streamUrl", e.StreamURL)
	return f
}
