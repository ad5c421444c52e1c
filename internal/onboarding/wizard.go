package onboarding

import (
	"github.com/hitoshi/clip/internal/model"
)

// Wizard は1訪問分のウィザード進行状態。最終ステップまで何も永続化しない。
// 呼び出し側（session.Controller）が排他制御を行う前提で、Wizard自体はスレッドセーフではない。
type Wizard struct {
	desc  Descriptor
	index int
	form  model.ProfileForm
}

// NewWizard は役割に対応するウィザードを先頭ステップで生成する。
func NewWizard(role model.Role) (*Wizard, error) {
	d, err := DescriptorFor(role)
	if err != nil {
		return nil, err
	}
	return &Wizard{desc: d}, nil
}

// Role はウィザードの役割を返す。
func (w *Wizard) Role() model.Role {
	return w.desc.Role
}

// Descriptor はウィザード定義を返す。
func (w *Wizard) Descriptor() Descriptor {
	return w.desc
}

// Current は現在のステップを返す。全ステップ通過後は最終ステップを返す。
func (w *Wizard) Current() Step {
	if w.index >= len(w.desc.Steps) {
		return w.desc.Steps[len(w.desc.Steps)-1]
	}
	return w.desc.Steps[w.index]
}

// Index は現在のステップ番号（0始まり）を返す。
func (w *Wizard) Index() int {
	return w.index
}

// Done は全ステップを通過したかを返す。
func (w *Wizard) Done() bool {
	return w.index >= len(w.desc.Steps)
}

// Form はこれまでに入力されたフォームのコピーを返す。
func (w *Wizard) Form() model.ProfileForm {
	return w.form
}

// Apply はpatchを取り込んだフォームを返す。ウィザード自体は変更しない。
// 現在のステップのフィールドはpatchの値で置き換え（空なら消える）、
// それ以外のフィールドはpatchの非ゼロ値だけを取り込む。
func (w *Wizard) Apply(patch model.ProfileForm) model.ProfileForm {
	form := w.form.Merge(patch)
	if w.Done() {
		return form
	}
	return form.Assign(patch, w.Current().Fields...)
}

// Next はpatchをフォームに取り込み、現在のステップを検証して次へ進む。
// 検証エラーがある場合は取り込んだ結果を保持したまま同じステップに留まる。
func (w *Wizard) Next(patch model.ProfileForm) []string {
	w.form = w.Apply(patch)
	if w.Done() {
		return nil
	}
	if errs := w.Current().Validate(w.desc.Role, w.form); len(errs) > 0 {
		return errs
	}
	w.index++
	return nil
}

// Back は1つ前のステップに戻る。先頭では何もしない。
func (w *Wizard) Back() {
	if w.index > 0 {
		w.index--
	}
}
