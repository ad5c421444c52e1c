package session

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_OpenCreatesAndChecksAuth(t *testing.T) {
	env := newTestEnv()
	env.identity.addUser("ana@example.com", "password123", true, nil)
	sess, _ := env.identity.CreateEmailPasswordSession(context.Background(), "ana@example.com", "password123")

	r := NewRegistry(func(secret string) *Controller {
		return NewController(env.options(), secret)
	}, env.observer)

	id, c, created := r.Open(context.Background(), "", sess.Secret)
	if !created || id == "" {
		t.Fatalf("id=%q created=%v", id, created)
	}
	if c.Snapshot().State != StateVerifiedNeedsOnboarding {
		t.Errorf("作成時にCheckAuthを実行するべき: %s", c.Snapshot().State)
	}
	if env.observer.visits != 1 {
		t.Errorf("visits = %d", env.observer.visits)
	}

	id2, c2, created2 := r.Open(context.Background(), id, "")
	if created2 || id2 != id || c2 != c {
		t.Error("既知の訪問IDでは同じControllerを返す")
	}

	id3, _, created3 := r.Open(context.Background(), "unknown", "")
	if !created3 || id3 == "unknown" {
		t.Error("未知の訪問IDは新しいIDで作成する")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRegistry_RemoveClosesController(t *testing.T) {
	env := newTestEnv()
	r := NewRegistry(func(secret string) *Controller {
		return NewController(env.options(), secret)
	}, nil)

	id, c, _ := r.Open(context.Background(), "", "")
	ch, _ := c.Subscribe()
	<-ch

	r.Remove(id)
	if _, ok := r.Get(id); ok {
		t.Error("削除後は取得できない")
	}
	if _, ok := <-ch; ok {
		t.Error("削除時にControllerを破棄するべき")
	}
	r.Remove(id)
}

func TestRegistry_Sweep(t *testing.T) {
	env := newTestEnv()
	now := testNow
	opts := env.options()
	opts.Now = func() time.Time { return now }
	r := NewRegistry(func(secret string) *Controller {
		return NewController(opts, secret)
	}, env.observer)

	oldID, _, _ := r.Open(context.Background(), "", "")
	now = now.Add(90 * time.Minute)
	freshID, _, _ := r.Open(context.Background(), "", "")
	now = now.Add(45 * time.Minute)

	if n := r.Sweep(2*time.Hour, now); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if _, ok := r.Get(oldID); ok {
		t.Error("古い訪問が残っている")
	}
	if _, ok := r.Get(freshID); !ok {
		t.Error("新しい訪問まで破棄された")
	}
	if env.observer.visits != 1 {
		t.Errorf("visits = %d", env.observer.visits)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	env := newTestEnv()
	r := NewRegistry(func(secret string) *Controller {
		return NewController(env.options(), secret)
	}, env.observer)
	for i := 0; i < 3; i++ {
		r.Open(context.Background(), "", "")
	}

	r.CloseAll()
	if r.Len() != 0 || env.observer.visits != 0 {
		t.Errorf("Len=%d visits=%d", r.Len(), env.observer.visits)
	}
}
