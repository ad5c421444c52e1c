package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/onboarding"
	"github.com/hitoshi/clip/internal/repository"
	"github.com/hitoshi/clip/internal/validation"
)

// WizardView はウィザードの現在位置。
type WizardView struct {
	Role  model.Role
	Step  onboarding.Step
	Index int
	Total int
	Done  bool
	Form  model.ProfileForm
}

func viewOf(w *onboarding.Wizard) WizardView {
	return WizardView{
		Role:  w.Role(),
		Step:  w.Current(),
		Index: w.Index(),
		Total: len(w.Descriptor().Steps),
		Done:  w.Done(),
		Form:  w.Form(),
	}
}

// Completion はオンボーディング完了処理の結果。
type Completion struct {
	Profile   *model.Profile
	ProfileID string
	// Persisted はプロフィールがドキュメントストアに保存されたか。
	// 保存先が未設定の場合はfalseとなり、prefsの更新だけが行われる。
	Persisted bool
	// ImagesStored は画像がBlob Storeに保存されたか。添付が無い場合もtrue。
	ImagesStored bool
}

// onboardingGateLocked はオンボーディング操作が可能な状態かを検証する。
func (c *Controller) onboardingGateLocked() error {
	if c.closed {
		return ErrClosed
	}
	return Allow(c.snapshotLocked(), AreaOnboarding)
}

// SelectRole は役割を選択してウィザードを先頭から開始する。
// 別の役割を選び直した場合は入力内容を破棄する。
func (c *Controller) SelectRole(role model.Role) (WizardView, error) {
	w, err := onboarding.NewWizard(role)
	if err != nil {
		return WizardView{}, &InvalidRoleError{Role: role}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.onboardingGateLocked(); err != nil {
		return WizardView{}, err
	}
	c.lastActive = c.opts.Now()
	if c.wizard != nil && c.wizard.Role() == role {
		return viewOf(c.wizard), nil
	}
	c.wizard = w
	c.publishLocked()
	return viewOf(w), nil
}

// Wizard は進行中のウィザードの状態を返す。
func (c *Controller) Wizard() (WizardView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.onboardingGateLocked(); err != nil {
		return WizardView{}, err
	}
	if c.wizard == nil {
		return WizardView{}, ErrNoRoleSelected
	}
	return viewOf(c.wizard), nil
}

// AdvanceOnboarding は入力を取り込んで現在のステップを検証し、問題なければ次へ進む。
// 検証エラーがある場合は同じステップに留まり、エラーの一覧を返す。何も永続化しない。
func (c *Controller) AdvanceOnboarding(patch model.ProfileForm) (WizardView, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.onboardingGateLocked(); err != nil {
		return WizardView{}, nil, err
	}
	if c.wizard == nil {
		return WizardView{}, nil, ErrNoRoleSelected
	}
	c.lastActive = c.opts.Now()
	errs := c.wizard.Next(validation.NormalizeProfile(patch))
	return viewOf(c.wizard), errs, nil
}

// BackOnboarding は1つ前のステップに戻る。
func (c *Controller) BackOnboarding() (WizardView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.onboardingGateLocked(); err != nil {
		return WizardView{}, err
	}
	if c.wizard == nil {
		return WizardView{}, ErrNoRoleSelected
	}
	c.lastActive = c.opts.Now()
	c.wizard.Back()
	return viewOf(c.wizard), nil
}

// CompleteOnboarding は役割別の必須項目を検証し、画像の保存、プロフィールの書き込み、
// prefsの更新を行ってオンボーディングを完了する。
//
// 検証エラーの場合はエラー一覧を返し、状態は変更しない。保存に失敗した場合はエラーを返し、
// オンボーディング未完了のまま再試行できる。同じ訪問での同時実行はErrOnboardingInFlightで拒否する。
func (c *Controller) CompleteOnboarding(ctx context.Context, role model.Role, form model.ProfileForm) (*Completion, []string, error) {
	desc, err := onboarding.DescriptorFor(role)
	if err != nil {
		return nil, nil, &InvalidRoleError{Role: role}
	}

	c.mu.Lock()
	if err := c.onboardingGateLocked(); err != nil {
		c.mu.Unlock()
		return nil, nil, err
	}
	if c.completing {
		c.mu.Unlock()
		return nil, nil, ErrOnboardingInFlight
	}
	if c.wizard != nil && c.wizard.Role() == role {
		form = c.wizard.Apply(form)
	}
	c.completing = true
	c.lastActive = c.opts.Now()
	secret, epoch := c.secret, c.epoch
	userID, prefs := c.user.ID, c.user.Prefs
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.completing = false
		c.mu.Unlock()
	}()

	form = validation.NormalizeProfile(form)
	if errs := validation.ValidateProfileByType(role, form); len(errs) > 0 {
		return nil, errs, nil
	}

	result := &Completion{ImagesStored: true}
	urls, err := c.opts.Images.UploadAll(ctx, desc.PendingImages(form))
	switch {
	case isNotConfigured(err):
		result.ImagesStored = false
		c.persistenceSkipped("image", userID)
	case err != nil:
		c.authEvent("complete_onboarding", err)
		return nil, nil, fmt.Errorf("failed to upload images: %w", err)
	}

	result.Profile = desc.Shape(userID, form, onboarding.ImageURLsFrom(urls), c.opts.Now())
	id, err := c.opts.Profiles.CreateProfile(ctx, result.Profile)
	switch {
	case isNotConfigured(err):
		c.persistenceSkipped("profile", userID)
	case errors.Is(err, repository.ErrDuplicateDocument):
		// 前回の試行でプロフィールだけ書き込まれていた
		result.Persisted = true
	case err != nil:
		c.authEvent("complete_onboarding", err)
		return nil, nil, fmt.Errorf("failed to save profile: %w", err)
	default:
		result.ProfileID = id
		result.Persisted = true
	}

	prefs.OnboardingCompleted = true
	prefs.UserType = role
	u, err := c.opts.Identity.UpdatePrefs(ctx, secret, prefs.Map())
	if err != nil {
		c.authEvent("complete_onboarding", err)
		return nil, nil, fmt.Errorf("failed to update preferences: %w", err)
	}

	c.commit(epoch, func() {
		c.user = u
		c.needsOnboarding = false
		c.wizard = nil
	})
	c.authEvent("complete_onboarding", nil)
	c.opts.Observer.ObserveOnboardingCompleted(role)
	return result, nil, nil
}

func (c *Controller) persistenceSkipped(kind, userID string) {
	c.opts.Observer.ObservePersistenceSkipped(kind)
	c.logger.Warn("persistence skipped: storage is not configured",
		slog.String("kind", kind),
		slog.String("user_id", userID),
	)
}
