package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/clip/internal/campaign"
	"github.com/hitoshi/clip/internal/launch"
	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/model"
)

// LaunchCreator はローンチイベント作成のサービスインターフェース。
type LaunchCreator interface {
	Create(ctx context.Context, creatorID string, input model.LaunchEventInput) (*launch.Result, []string, error)
}

// CampaignCreator はリワードキャンペーン作成のサービスインターフェース。
type CampaignCreator interface {
	Create(ctx context.Context, creatorID string, input model.RewardsCampaignInput) (*campaign.Result, []string, error)
}

// ContentHandler はクリエイターが作成するローンチイベントとキャンペーンのHTTPハンドラー。
// ACTIVEの訪問からのみ呼び出される（ルートガードの内側に配置する）。
type ContentHandler struct {
	launches  LaunchCreator
	campaigns CampaignCreator
	maxBody   int64
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(launches LaunchCreator, campaigns CampaignCreator, maxBody int64) *ContentHandler {
	return &ContentHandler{launches: launches, campaigns: campaigns, maxBody: maxBody}
}

type launchResponse struct {
	ID             string    `json:"id,omitempty"`
	StreamerName   string    `json:"streamerName"`
	LaunchTitle    string    `json:"launchTitle"`
	TokenName      string    `json:"tokenName"`
	TokenSymbol    string    `json:"tokenSymbol"`
	Description    string    `json:"description,omitempty"`
	ScheduledDate  time.Time `json:"scheduledDate"`
	StreamPlatform string    `json:"streamPlatform,omitempty"`
	StreamURL      string    `json:"streamUrl,omitempty"`
	ImageURL       string    `json:"imageUrl"`
	Status         string    `json:"status"`
	Persisted      bool      `json:"persisted"`
	ImageStored    bool      `json:"imageStored"`
}

type campaignResponse struct {
	ID               string    `json:"id,omitempty"`
	CampaignTitle    string    `json:"campaignTitle"`
	CreatorName      string    `json:"creatorName"`
	Description      string    `json:"description,omitempty"`
	PrizePool        float64   `json:"prizePool"`
	PayoutPer1kViews float64   `json:"payoutPer1kViews"`
	CampaignEndDate  time.Time `json:"campaignEndDate"`
	Requirements     []string  `json:"requirements"`
	ImageURL         string    `json:"imageUrl"`
	Status           string    `json:"status"`
	Persisted        bool      `json:"persisted"`
	ImageStored      bool      `json:"imageStored"`
}

// CreateLaunch はローンチイベントを作成する。
// POST /api/launches
func (h *ContentHandler) CreateLaunch(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}

	var input model.LaunchEventInput
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxBody); err != nil {
			writeRequestError(w, err)
			return
		}
		in, err := launchFromMultipart(r)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		input = in
	} else {
		var req launchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON or multipart")
			return
		}
		input = req.toModel()
	}

	res, errs, err := h.launches.Create(r.Context(), c.Snapshot().UserID, input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if len(errs) > 0 {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	e := res.Event
	writeJSON(w, http.StatusCreated, launchResponse{
		ID:             e.ID,
		StreamerName:   e.StreamerName,
		LaunchTitle:    e.LaunchTitle,
		TokenName:      e.TokenName,
		TokenSymbol:    e.TokenSymbol,
		Description:    e.Description,
		ScheduledDate:  e.ScheduledAt,
		StreamPlatform: e.StreamPlatform,
		StreamURL:      e.StreamURL,
		ImageURL:       e.ImageURL,
		Status:         string(e.Status),
		Persisted:      res.Persisted,
		ImageStored:    res.ImageStored,
	})
}

// CreateCampaign はリワードキャンペーンを作成する。
// POST /api/campaigns
func (h *ContentHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}

	var input model.RewardsCampaignInput
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxBody); err != nil {
			writeRequestError(w, err)
			return
		}
		in, err := campaignFromMultipart(r)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		input = in
	} else {
		var req campaignRequest
		if err := decodeJSON(r, &req); err != nil {
			writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON or multipart")
			return
		}
		input = req.toModel()
	}

	res, errs, err := h.campaigns.Create(r.Context(), c.Snapshot().UserID, input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if len(errs) > 0 {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	cp := res.Campaign
	reqs := cp.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	writeJSON(w, http.StatusCreated, campaignResponse{
		ID:               cp.ID,
		CampaignTitle:    cp.CampaignTitle,
		CreatorName:      cp.CreatorName,
		Description:      cp.Description,
		PrizePool:        cp.PrizePool,
		PayoutPer1kViews: cp.PayoutPer1kViews,
		CampaignEndDate:  cp.EndsAt,
		Requirements:     reqs,
		ImageURL:         cp.ImageURL,
		Status:           string(cp.Status),
		Persisted:        res.Persisted,
		ImageStored:      res.ImageStored,
	})
}
