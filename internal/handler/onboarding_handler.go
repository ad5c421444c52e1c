package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/session"
)

// OnboardingHandler はオンボーディングウィザードのHTTPハンドラー。
type OnboardingHandler struct {
	maxBody int64
}

// NewOnboardingHandler はOnboardingHandlerを生成する。
// maxBodyは完了リクエスト（画像を含むmultipart）のボディ上限。
func NewOnboardingHandler(maxBody int64) *OnboardingHandler {
	return &OnboardingHandler{maxBody: maxBody}
}

type selectRoleRequest struct {
	Role string `json:"role"`
}

// Get はウィザードの現在位置を返す。
// GET /api/onboarding
func (h *OnboardingHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	view, err := c.Wizard()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWizardResponse(view, nil))
}

// SelectRole は役割を選択してウィザードを開始する。
// POST /api/onboarding/role
func (h *OnboardingHandler) SelectRole(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	var req selectRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRoleError(req.Role))
		return
	}
	view, err := c.SelectRole(role)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWizardResponse(view, nil))
}

// Next は現在のステップの入力を検証して次のステップへ進める。
// 検証エラーの場合は同じステップのまま422でエラー一覧を返す。
// POST /api/onboarding/next
func (h *OnboardingHandler) Next(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	var req profileFormRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	view, errs, err := c.AdvanceOnboarding(req.toModel())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if len(errs) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toWizardResponse(view, errs))
}

// Back は1つ前のステップに戻る。
// POST /api/onboarding/back
func (h *OnboardingHandler) Back(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	view, err := c.BackOnboarding()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWizardResponse(view, nil))
}

type completionResponse struct {
	ProfileID    string          `json:"profileId,omitempty"`
	Persisted    bool            `json:"persisted"`
	ImagesStored bool            `json:"imagesStored"`
	Session      sessionResponse `json:"session"`
}

// Complete はオンボーディングを完了する。
// 画像を添付する場合はmultipart/form-data、添付しない場合はJSONで送る。
// POST /api/onboarding/complete
func (h *OnboardingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}

	var (
		roleName string
		form     model.ProfileForm
	)
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxBody); err != nil {
			writeRequestError(w, err)
			return
		}
		roleName = r.FormValue("role")
		f, err := profileFormFromMultipart(r)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		form = f
	} else {
		var req struct {
			Role string `json:"role"`
			profileFormRequest
		}
		if err := decodeJSON(r, &req); err != nil {
			writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON or multipart")
			return
		}
		roleName = req.Role
		form = req.profileFormRequest.toModel()
	}

	role, err := resolveRole(c, roleName)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	// クライアントが切断しても保存とprefs更新は最後まで行う
	ctx := context.WithoutCancel(r.Context())
	result, errs, err := c.CompleteOnboarding(ctx, role, form)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if len(errs) > 0 {
		middleware.WriteValidationErrors(w, errs)
		return
	}
	writeJSON(w, http.StatusCreated, completionResponse{
		ProfileID:    result.ProfileID,
		Persisted:    result.Persisted,
		ImagesStored: result.ImagesStored,
		Session:      toSessionResponse(c.Snapshot()),
	})
}

// resolveRole はリクエストの役割を解釈する。省略時はウィザードで選択中の役割を使う。
func resolveRole(c *session.Controller, name string) (model.Role, error) {
	if name != "" {
		role, err := model.ParseRole(name)
		if err != nil {
			return "", model.NewInvalidRoleError(name)
		}
		return role, nil
	}
	if role := c.Snapshot().Role; role != "" {
		return role, nil
	}
	return "", session.ErrNoRoleSelected
}
