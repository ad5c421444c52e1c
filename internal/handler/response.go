package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/onboarding"
	"github.com/hitoshi/clip/internal/session"
)

// userResponse はログイン中ユーザーのAPIレスポンス。
type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
	UserType      string `json:"userType,omitempty"`
}

// sessionResponse は訪問の状態と遷移先のAPIレスポンス。
type sessionResponse struct {
	State           string        `json:"state"`
	Route           string        `json:"route"`
	Authenticated   bool          `json:"authenticated"`
	NeedsOnboarding bool          `json:"needsOnboarding"`
	Role            string        `json:"role,omitempty"`
	User            *userResponse `json:"user,omitempty"`
}

func toSessionResponse(s session.Snapshot) sessionResponse {
	resp := sessionResponse{
		State:           string(s.State),
		Route:           session.Route(s),
		Authenticated:   s.Authenticated(),
		NeedsOnboarding: s.NeedsOnboarding,
		Role:            string(s.Role),
	}
	if s.Authenticated() {
		resp.User = &userResponse{
			ID:            s.UserID,
			Email:         s.Email,
			Name:          s.DisplayName,
			EmailVerified: s.EmailVerified,
			UserType:      string(s.Preferences.UserType),
		}
	}
	return resp
}

// stepResponse はウィザードのステップ。
type stepResponse struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
}

// wizardResponse はウィザードの現在位置のAPIレスポンス。
type wizardResponse struct {
	Role   string             `json:"role"`
	Step   stepResponse       `json:"step"`
	Index  int                `json:"index"`
	Total  int                `json:"total"`
	Done   bool               `json:"done"`
	Steps  []stepResponse     `json:"steps"`
	Form   profileFormRequest `json:"form"`
	Errors []string           `json:"errors,omitempty"`
}

func toWizardResponse(v session.WizardView, errs []string) wizardResponse {
	resp := wizardResponse{
		Role:   string(v.Role),
		Step:   toStepResponse(v.Step),
		Index:  v.Index,
		Total:  v.Total,
		Done:   v.Done,
		Form:   fromProfileForm(v.Form),
		Errors: errs,
	}
	if desc, err := onboarding.DescriptorFor(v.Role); err == nil {
		for _, s := range desc.Steps {
			resp.Steps = append(resp.Steps, toStepResponse(s))
		}
	}
	return resp
}

func toStepResponse(s onboarding.Step) stepResponse {
	fields := s.Fields
	if fields == nil {
		fields = []string{}
	}
	return stepResponse{ID: s.ID, Title: s.Title, Fields: fields}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// controllerFrom はリクエストの訪問のControllerを取り出す。
// 訪問ミドルウェアを通っていない場合は401を書き込んでfalseを返す。
func controllerFrom(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, ok := middleware.ControllerFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, session.ErrNotAuthenticated)
		return nil, false
	}
	return c, true
}

func writeInvalidRequest(w http.ResponseWriter, status int, reason string) {
	middleware.WriteErrorResponse(w, status, model.NewInvalidRequestError(reason))
}

// writeEvent はSSEのイベントを1件書き込む。
func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
