package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/clip/internal/model"
)

// multipartMemory はParseMultipartFormでメモリに保持する上限。超えた分は一時ファイルに書かれる。
const multipartMemory = 8 << 20

var errBodyTooLarge = errors.New("request body is too large")

// profileFormRequest はウィザードのフォームのリクエスト・レスポンス兼用の形。
// 画像は含まず、添付済みかどうかだけを返す。
type profileFormRequest struct {
	DisplayName       string   `json:"displayName,omitempty"`
	Bio               string   `json:"bio,omitempty"`
	Niches            []string `json:"niches,omitempty"`
	Platforms         []string `json:"platforms,omitempty"`
	StreamingPlatform string   `json:"streamingPlatform,omitempty"`
	ChannelURL        string   `json:"channelUrl,omitempty"`
	AudienceSize      int      `json:"audienceSize,omitempty"`
	AgencyName        string   `json:"agencyName,omitempty"`
	ContactEmail      string   `json:"contactEmail,omitempty"`
	Website           string   `json:"website,omitempty"`
	HasAvatar         bool     `json:"hasAvatar,omitempty"`
	HasBanner         bool     `json:"hasBanner,omitempty"`
	HasLogo           bool     `json:"hasLogo,omitempty"`
}

func (p profileFormRequest) toModel() model.ProfileForm {
	return model.ProfileForm{
		DisplayName:       p.DisplayName,
		Bio:               p.Bio,
		Niches:            p.Niches,
		Platforms:         p.Platforms,
		StreamingPlatform: p.StreamingPlatform,
		ChannelURL:        p.ChannelURL,
		AudienceSize:      p.AudienceSize,
		AgencyName:        p.AgencyName,
		ContactEmail:      p.ContactEmail,
		Website:           p.Website,
	}
}

func fromProfileForm(f model.ProfileForm) profileFormRequest {
	return profileFormRequest{
		DisplayName:       f.DisplayName,
		Bio:               f.Bio,
		Niches:            f.Niches,
		Platforms:         f.Platforms,
		StreamingPlatform: f.StreamingPlatform,
		ChannelURL:        f.ChannelURL,
		AudienceSize:      f.AudienceSize,
		AgencyName:        f.AgencyName,
		ContactEmail:      f.ContactEmail,
		Website:           f.Website,
		HasAvatar:         f.Avatar != nil,
		HasBanner:         f.Banner != nil,
		HasLogo:           f.Logo != nil,
	}
}

// launchRequest はローンチイベント作成のリクエスト。
type launchRequest struct {
	StreamerName   string `json:"streamerName"`
	LaunchTitle    string `json:"launchTitle"`
	TokenName      string `json:"tokenName"`
	TokenSymbol    string `json:"tokenSymbol"`
	Description    string `json:"description"`
	ScheduledDate  string `json:"scheduledDate"`
	StreamPlatform string `json:"streamPlatform"`
	StreamURL      string `json:"streamUrl"`
	ImageURL       string `json:"imageUrl"`
}

func (l launchRequest) toModel() model.LaunchEventInput {
	return model.LaunchEventInput{
		StreamerName:   l.StreamerName,
		LaunchTitle:    l.LaunchTitle,
		TokenName:      l.TokenName,
		TokenSymbol:    l.TokenSymbol,
		Description:    l.Description,
		ScheduledDate:  l.ScheduledDate,
		StreamPlatform: l.StreamPlatform,
		StreamURL:      l.StreamURL,
		ImageURL:       l.ImageURL,
	}
}

// campaignRequest はリワードキャンペーン作成のリクエスト。
type campaignRequest struct {
	CampaignTitle    string   `json:"campaignTitle"`
	CreatorName      string   `json:"creatorName"`
	Description      string   `json:"description"`
	PrizePool        float64  `json:"prizePool"`
	PayoutPer1kViews float64  `json:"payoutPer1kViews"`
	CampaignEndDate  string   `json:"campaignEndDate"`
	Requirements     []string `json:"requirements"`
	ImageURL         string   `json:"imageUrl"`
	Draft            bool     `json:"draft"`
}

func (c campaignRequest) toModel() model.RewardsCampaignInput {
	return model.RewardsCampaignInput{
		CampaignTitle:    c.CampaignTitle,
		CreatorName:      c.CreatorName,
		Description:      c.Description,
		PrizePool:        c.PrizePool,
		PayoutPer1kViews: c.PayoutPer1kViews,
		CampaignEndDate:  c.CampaignEndDate,
		Requirements:     c.Requirements,
		ImageURL:         c.ImageURL,
		Draft:            c.Draft,
	}
}

// decodeJSON はJSONボディを読み取る。未知のフィールドは無視する。
// 空のボディはゼロ値として扱う。
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// parseMultipart はボディサイズを制限してmultipartフォームを読み取る。
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBody int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errBodyTooLarge
		}
		return err
	}
	return nil
}

// formUpload はmultipartのファイルフィールドを読み取る。添付が無い場合はnilを返す。
func formUpload(r *http.Request, field string) (*model.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &model.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// formList は同名フィールドの複数値、またはカンマ区切りの1値をリストとして返す。
func formList(r *http.Request, field string) []string {
	values, ok := r.MultipartForm.Value[field]
	if !ok {
		return nil
	}
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	return values
}

// formNumber は数値フィールドを読み取る。解釈できない値は0とし、検証で弾く。
func formNumber(r *http.Request, field string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(field)), 64)
	if err != nil {
		return 0
	}
	return f
}

func profileFormFromMultipart(r *http.Request) (model.ProfileForm, error) {
	f := model.ProfileForm{
		DisplayName:       r.FormValue("displayName"),
		Bio:               r.FormValue("bio"),
		Niches:            formList(r, "niches"),
		Platforms:         formList(r, "platforms"),
		StreamingPlatform: r.FormValue("streamingPlatform"),
		ChannelURL:        r.FormValue("channelUrl"),
		AudienceSize:      int(formNumber(r, "audienceSize")),
		AgencyName:        r.FormValue("agencyName"),
		ContactEmail:      r.FormValue("contactEmail"),
		Website:           r.FormValue("website"),
	}
	var err error
	if f.Avatar, err = formUpload(r, "avatar"); err != nil {
		return f, err
	}
	if f.Banner, err = formUpload(r, "banner"); err != nil {
		return f, err
	}
	if f.Logo, err = formUpload(r, "logo"); err != nil {
		return f, err
	}
	return f, nil
}

func launchFromMultipart(r *http.Request) (model.LaunchEventInput, error) {
	in := launchRequest{
		StreamerName:   r.FormValue("streamerName"),
		LaunchTitle:    r.FormValue("launchTitle"),
		TokenName:      r.FormValue("tokenName"),
		TokenSymbol:    r.FormValue("tokenSymbol"),
		Description:    r.FormValue("description"),
		ScheduledDate:  r.FormValue("scheduledDate"),
		StreamPlatform: r.FormValue("streamPlatform"),
		StreamURL:      r.FormValue("streamUrl"),
		ImageURL:       r.FormValue("imageUrl"),
	}.toModel()
	up, err := formUpload(r, "image")
	in.Image = up
	return in, err
}

func campaignFromMultipart(r *http.Request) (model.RewardsCampaignInput, error) {
	draft, _ := strconv.ParseBool(r.FormValue("draft"))
	in := campaignRequest{
		CampaignTitle:    r.FormValue("campaignTitle"),
		CreatorName:      r.FormValue("creatorName"),
		Description:      r.FormValue("description"),
		PrizePool:        formNumber(r, "prizePool"),
		PayoutPer1kViews: formNumber(r, "payoutPer1kViews"),
		CampaignEndDate:  r.FormValue("campaignEndDate"),
		Requirements:     formList(r, "requirements"),
		ImageURL:         r.FormValue("imageUrl"),
		Draft:            draft,
	}.toModel()
	up, err := formUpload(r, "image")
	in.Image = up
	return in, err
}

// writeRequestError はリクエストの読み取りエラーを書き込む。
func writeRequestError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeInvalidRequest(w, status, err.Error())
}
