// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, onboarding, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotAuthenticated          = "NOT_AUTHENTICATED"
	ErrCodeEmailNotVerified          = "EMAIL_NOT_VERIFIED"
	ErrCodeOnboardingRequired        = "ONBOARDING_REQUIRED"
	ErrCodeOnboardingNotRequired     = "ONBOARDING_NOT_REQUIRED"
	ErrCodeOnboardingInFlight        = "ONBOARDING_IN_FLIGHT"
	ErrCodeNoRoleSelected            = "NO_ROLE_SELECTED"
	ErrCodeInvalidRole               = "INVALID_ROLE"
	ErrCodeMalformedVerificationLink = "MALFORMED_VERIFICATION_LINK"
	ErrCodeValidationFailed          = "VALIDATION_FAILED"
	ErrCodeInvalidRequest            = "INVALID_REQUEST"
	ErrCodeProviderRejected          = "PROVIDER_REJECTED"
	ErrCodeProviderUnavailable       = "PROVIDER_UNAVAILABLE"
	ErrCodeImageRejected             = "IMAGE_REJECTED"
)

// NewNotAuthenticatedError はログインが必要な操作を匿名で呼び出した場合のエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "You need to sign in to continue.",
		Category: "auth",
		Action:   "Sign in or create an account.",
	}
}

// NewEmailNotVerifiedError は未認証メールアドレスのユーザーが保護された画面に進もうとした場合のエラー。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "Please verify your email address first.",
		Category: "auth",
		Action:   "Open the link in the verification email, or request a new one.",
	}
}

// NewOnboardingRequiredError はオンボーディング未完了のユーザーがメイン画面に進もうとした場合のエラー。
func NewOnboardingRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOnboardingRequired,
		Message:  "Finish setting up your profile first.",
		Category: "onboarding",
		Action:   "Choose your role and complete onboarding.",
	}
}

// NewOnboardingNotRequiredError はオンボーディング済みまたは対象外のユーザーがウィザードを操作した場合のエラー。
func NewOnboardingNotRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOnboardingNotRequired,
		Message:  "Onboarding is not available for this account right now.",
		Category: "onboarding",
		Action:   "Go to your dashboard.",
	}
}

// NewOnboardingInFlightError は同一訪問でオンボーディング完了処理が並行実行された場合のエラー。
func NewOnboardingInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeOnboardingInFlight,
		Message:  "Your profile is already being saved.",
		Category: "onboarding",
		Action:   "Wait a moment and refresh the page.",
	}
}

// NewNoRoleSelectedError はウィザード開始前にステップ操作された場合のエラー。
func NewNoRoleSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoRoleSelected,
		Message:  "No role has been selected yet.",
		Category: "onboarding",
		Action:   "Choose clipper, streamer or agency to start onboarding.",
	}
}

// NewInvalidRoleError は未知の役割が指定された場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("Unknown role: %s", role),
		Category: "validation",
		Action:   "Choose clipper, streamer or agency.",
	}
}

// NewMalformedVerificationLinkError は認証リンクにuserIdまたはsecretが無い場合のエラー。
// 再試行では回復しない。
func NewMalformedVerificationLinkError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedVerificationLink,
		Message:  "This verification link is invalid or incomplete.",
		Category: "auth",
		Action:   "Request a new verification email.",
	}
}

// NewValidationFailedError は入力検証エラーの見出しを生成する。個々のエラーは別途返す。
func NewValidationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Some fields need your attention.",
		Category: "validation",
		Action:   "Fix the listed fields and submit again.",
	}
}

// NewInvalidRequestError はリクエストボディが解釈できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the submitted data and try again.",
	}
}

// NewProviderRejectedError はバックエンドサービスが要求を拒否した場合のエラー。
// メッセージはプロバイダーのものをそのまま利用者に見せる。
func NewProviderRejectedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderRejected,
		Message:  message,
		Category: "provider",
		Action:   "Check your details and try again.",
	}
}

// NewProviderUnavailableError はバックエンドサービスに到達できない場合のエラー。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "Our account service is not responding.",
		Category: "provider",
		Action:   "Please try again in a few moments.",
	}
}

// NewImageRejectedError は画像の取得やアップロード前検証に失敗した場合のエラー。
func NewImageRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImageRejected,
		Message:  fmt.Sprintf("The image could not be used: %s", reason),
		Category: "validation",
		Action:   "Upload a PNG, JPEG, GIF or WebP image.",
	}
}
