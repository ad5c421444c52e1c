package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/clip/internal/appwrite"
	"github.com/hitoshi/clip/internal/media"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/session"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Category string   `json:"category"`
	Action   string   `json:"action"`
	Errors   []string `json:"errors,omitempty"`
	// Route はクライアントが遷移すべき画面。アクセス制御で拒否した場合のみ設定する。
	Route string `json:"route,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeErrorBody(w, statusCode, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteValidationErrors は入力検証エラーの一覧を422で書き込む。
func WriteValidationErrors(w http.ResponseWriter, errs []string) {
	apiErr := model.NewValidationFailedError()
	writeErrorBody(w, http.StatusUnprocessableEntity, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Errors:   errs,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}

// WriteError はエラーをステータスコードとAPIErrorに変換して書き込む。
// 既知のエラーに当てはまらないものは500とし、詳細はログにのみ残す。
func WriteError(w http.ResponseWriter, err error) {
	status, apiErr := ClassifyError(err)
	if apiErr == nil {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, status, apiErr)
}

// writeGuardError はアクセス制御による拒否を遷移先付きで書き込む。
func writeGuardError(w http.ResponseWriter, err error, route string) {
	status, apiErr := ClassifyError(err)
	if apiErr == nil {
		WriteError(w, err)
		return
	}
	writeErrorBody(w, status, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Route:    route,
	})
}

// ClassifyError はエラーに対応するHTTPステータスとAPIErrorを返す。
// 分類できないエラーの場合はapiErrがnilになる。
func ClassifyError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadRequest, apiErr
	}
	var roleErr *session.InvalidRoleError
	if errors.As(err, &roleErr) {
		return http.StatusBadRequest, model.NewInvalidRoleError(string(roleErr.Role))
	}

	switch {
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, session.ErrClosed):
		return http.StatusUnauthorized, model.NewNotAuthenticatedError()
	case errors.Is(err, session.ErrEmailNotVerified):
		return http.StatusForbidden, model.NewEmailNotVerifiedError()
	case errors.Is(err, session.ErrOnboardingRequired):
		return http.StatusForbidden, model.NewOnboardingRequiredError()
	case errors.Is(err, session.ErrOnboardingNotRequired):
		return http.StatusConflict, model.NewOnboardingNotRequiredError()
	case errors.Is(err, session.ErrOnboardingInFlight):
		return http.StatusConflict, model.NewOnboardingInFlightError()
	case errors.Is(err, session.ErrNoRoleSelected):
		return http.StatusConflict, model.NewNoRoleSelectedError()
	case errors.Is(err, session.ErrInvalidRole):
		return http.StatusBadRequest, model.NewInvalidRoleError("")
	case errors.Is(err, session.ErrMalformedVerificationLink):
		return http.StatusBadRequest, model.NewMalformedVerificationLinkError()
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, model.NewImageRejectedError("the file is too large")
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusUnprocessableEntity, model.NewImageRejectedError("unsupported image type")
	case errors.Is(err, media.ErrEmpty):
		return http.StatusUnprocessableEntity, model.NewImageRejectedError("the file is empty")
	case errors.Is(err, media.ErrURLRejected):
		return http.StatusUnprocessableEntity, model.NewImageRejectedError("the image URL is not allowed")
	case errors.Is(err, media.ErrFetchFailed):
		return http.StatusUnprocessableEntity, model.NewImageRejectedError("the image URL could not be downloaded")
	}

	if pe, ok := appwrite.AsError(err); ok {
		return providerStatus(pe)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, model.NewProviderUnavailableError()
	}
	return http.StatusInternalServerError, nil
}

// providerStatus はAppwriteのエラーコードをステータスに変換する。
// 5xxは上流障害として502にまとめる。
func providerStatus(pe *appwrite.Error) (int, *model.APIError) {
	switch {
	case pe.Code >= 500 || pe.Code == 0:
		return http.StatusBadGateway, model.NewProviderUnavailableError()
	case pe.Code >= 400:
		return pe.Code, model.NewProviderRejectedError(pe.Message)
	default:
		return http.StatusBadGateway, model.NewProviderUnavailableError()
	}
}

func writeErrorBody(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
