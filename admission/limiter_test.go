package admission

import (
	"context"
	"testing"
	"time"

	"imageforge/core"
	"imageforge/logging"

	"golang.org/x/crypto/bcrypt"
)

func newTestLimiter(t *testing.T, config LimiterConfig) *Limiter {
	t.Helper()
	limiter, err := NewLimiter(NewMemoryStore(), logging.NewNop(), nil, config)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	return limiter
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := newTestLimiter(t, LimiterConfig{Limit: 10, Window: time.Minute})
	id := Identity{UserID: "user-1"}

	for i := 0; i < 10; i++ {
		decision, err := limiter.Admit(context.Background(), id)
		if err != nil {
			t.Fatalf("Admit() #%d error = %v, want nil", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("Admit() #%d Allowed = false, want true", i+1)
		}
		wantRemaining := 10 - (i + 1)
		if decision.Remaining != wantRemaining {
			t.Errorf("Admit() #%d Remaining = %d, want %d", i+1, decision.Remaining, wantRemaining)
		}
	}
}

func TestLimiter_RejectsOverLimit(t *testing.T) {
	limiter := newTestLimiter(t, LimiterConfig{Limit: 10, Window: time.Minute})
	id := Identity{UserID: "user-1"}

	for i := 0; i < 10; i++ {
		if _, err := limiter.Admit(context.Background(), id); err != nil {
			t.Fatalf("Admit() #%d error = %v", i+1, err)
		}
	}

	decision, err := limiter.Admit(context.Background(), id)
	if decision.Allowed {
		t.Error("11th Admit() Allowed = true, want false")
	}

	aerr, ok := core.IsAdmissionError(err)
	if !ok {
		t.Fatalf("11th Admit() error = %v, want AdmissionError", err)
	}
	if aerr.Limit != 10 {
		t.Errorf("AdmissionError.Limit = %d, want 10", aerr.Limit)
	}
	if aerr.RetryAfter <= 0 || aerr.RetryAfter > time.Minute {
		t.Errorf("AdmissionError.RetryAfter = %v, want in (0, 1m]", aerr.RetryAfter)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Errorf("Decision.RetryAfter = %v, want in (0, 1m]", decision.RetryAfter)
	}
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t, LimiterConfig{Limit: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := limiter.Admit(context.Background(), Identity{UserID: "heavy"}); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	}
	if _, err := limiter.Admit(context.Background(), Identity{UserID: "heavy"}); err == nil {
		t.Fatal("heavy user not rejected")
	}

	decision, err := limiter.Admit(context.Background(), Identity{UserID: "light"})
	if err != nil || !decision.Allowed {
		t.Errorf("other identity affected: Allowed = %v, err = %v", decision.Allowed, err)
	}

	decision, err = limiter.Admit(context.Background(), Identity{IP: "10.0.0.1"})
	if err != nil || !decision.Allowed {
		t.Errorf("anonymous identity affected: Allowed = %v, err = %v", decision.Allowed, err)
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	limiter := newTestLimiter(t, LimiterConfig{Limit: 1, Window: 50 * time.Millisecond})
	id := Identity{IP: "10.0.0.1"}

	if _, err := limiter.Admit(context.Background(), id); err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}
	if _, err := limiter.Admit(context.Background(), id); err == nil {
		t.Fatal("second Admit() not rejected")
	}

	time.Sleep(60 * time.Millisecond)

	decision, err := limiter.Admit(context.Background(), id)
	if err != nil || !decision.Allowed {
		t.Errorf("Admit() after window reset: Allowed = %v, err = %v", decision.Allowed, err)
	}
}

func TestLimiter_AdminKeyBypasses(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}
	limiter := newTestLimiter(t, LimiterConfig{
		Limit:        1,
		Window:       time.Minute,
		AdminKeyHash: string(hash),
	})
	id := Identity{UserID: "admin", AdminKey: "super-secret"}

	for i := 0; i < 5; i++ {
		decision, err := limiter.Admit(context.Background(), id)
		if err != nil {
			t.Fatalf("Admit() #%d error = %v", i+1, err)
		}
		if !decision.Allowed || !decision.Bypassed {
			t.Errorf("Admit() #%d = %+v, want allowed bypass", i+1, decision)
		}
	}

	// A wrong key gets no bypass
	wrong := Identity{UserID: "admin", AdminKey: "guess"}
	if decision, _ := limiter.Admit(context.Background(), wrong); decision.Bypassed {
		t.Error("wrong admin key was bypassed")
	}
}

func TestIdentity_KeyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{"user id wins", Identity{UserID: "u1", IP: "10.0.0.1"}, "user:u1"},
		{"ip fallback", Identity{IP: "10.0.0.1"}, "ip:10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.Key(); got != tt.want {
				t.Errorf("Key() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, _, err := store.Incr(ctx, "expired", 10*time.Millisecond); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if _, _, err := store.Incr(ctx, "live", time.Minute); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if removed := store.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if size := store.Size(); size != 1 {
		t.Errorf("Size() after cleanup = %d, want 1", size)
	}
}
