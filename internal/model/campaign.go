package model

import "time"

// CampaignStatus はリワードキャンペーンのライフサイクル状態。
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// RewardsCampaignInput はクリエイターが入力するキャンペーンの部分レコード。
type RewardsCampaignInput struct {
	CampaignTitle    string
	CreatorName      string
	Description      string
	PrizePool        float64
	PayoutPer1kViews float64
	CampaignEndDate  string
	Requirements     []string
	ImageURL         string
	Image            *Upload
	Draft            bool
}

// RewardsCampaign は保存済みのリワードキャンペーン。
// 1,000再生ごとにPayoutPer1kViewsが支払われ、PrizePoolを上限とする。
type RewardsCampaign struct {
	ID               string
	CreatorID        string
	CampaignTitle    string
	CreatorName      string
	Description      string
	PrizePool        float64
	PayoutPer1kViews float64
	EndsAt           time.Time
	Requirements     []string
	ImageURL         string
	Status           CampaignStatus
	CreatedAt        time.Time
}

// Fields はドキュメントストアに保存するフィールドを返す。
func (c *RewardsCampaign) Fields() map[string]any {
	f := map[string]any{
		"creatorId":        c.CreatorID,
		"campaignTitle":    c.CampaignTitle,
		"creatorName":      c.CreatorName,
		"prizePool":        c.PrizePool,
		"payoutPer1kViews": c.PayoutPer1kViews,
		"campaignEndDate":  c.EndsAt.UTC().Format(time.RFC3339),
		"requirements":     nonNil(c.Requirements),
		"imageUrl":         c.ImageURL,
		"status":           string(c.Status),
		"createdAt":        c.CreatedAt.UTC().Format(time.RFC3339),
	}
	putString(f, "description", c.Description)
	return f
}
