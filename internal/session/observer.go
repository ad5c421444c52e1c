package session

import (
	"github.com/hitoshi/clip/internal/model"
)

// Observer はControllerとRegistryのイベントを受け取るフック。
// メトリクス収集に使う。
type Observer interface {
	ObserveAuthEvent(event string, err error)
	ObserveTransition(from, to State)
	ObserveOnboardingCompleted(role model.Role)
	ObservePersistenceSkipped(kind string)
	SetActiveVisits(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveAuthEvent(string, error)        {}
func (nopObserver) ObserveTransition(State, State)        {}
func (nopObserver) ObserveOnboardingCompleted(model.Role) {}
func (nopObserver) ObservePersistenceSkipped(string)      {}
func (nopObserver) SetActiveVisits(int)                   {}
