package ratelimit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestBurstAdmitsExactlyBurstSize(t *testing.T) {
	l := NewLimiter(map[string]SourceLimit{
		"test": {RequestsPerMinute: 60, BurstSize: 4},
	}, zaptest.NewLogger(t))

	admitted := 0
	for i := 0; i < 5; i++ {
		if l.Allow("test") {
			admitted++
		}
	}
	if admitted != 4 {
		t.Errorf("Expected exactly 4 admitted, got %d", admitted)
	}
	if wait := l.WaitTime("test"); wait <= 0 {
		t.Errorf("Expected positive wait time after burst exhausted, got %v", wait)
	}
}

func TestMediumWaitsThreeSeconds(t *testing.T) {
	l := NewLimiter(nil, zaptest.NewLogger(t))

	// medium: 20 rpm, burst 3 -> one token every 3s once the burst is spent
	for i := 0; i < 3; i++ {
		if !l.Allow("medium") {
			t.Fatalf("Expected call %d to be admitted immediately", i+1)
		}
	}
	if l.Allow("medium") {
		t.Fatal("Expected 4th rapid call to be throttled")
	}

	wait := l.WaitTime("medium")
	if wait < 2500*time.Millisecond || wait > 3100*time.Millisecond {
		t.Errorf("Expected wait of roughly 3s, got %v", wait)
	}
}

func TestWaitTimeDoesNotConsume(t *testing.T) {
	l := NewLimiter(map[string]SourceLimit{
		"test": {RequestsPerMinute: 60, BurstSize: 1},
	}, zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		l.WaitTime("test")
	}
	if !l.Allow("test") {
		t.Error("Expected WaitTime calls to leave the bucket untouched")
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := NewLimiter(map[string]SourceLimit{
		"test": {RequestsPerMinute: 600, BurstSize: 1},
	}, zaptest.NewLogger(t))

	if !l.Allow("test") {
		t.Fatal("Expected first call admitted")
	}

	start := time.Now()
	if err := l.Wait(context.Background(), "test"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	// 600 rpm -> one token every 100ms
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected Wait to block for the refill, returned after %v", elapsed)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := NewLimiter(map[string]SourceLimit{
		"test": {RequestsPerMinute: 1, BurstSize: 1},
	}, zaptest.NewLogger(t))

	l.Allow("test")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "test"); err == nil {
		t.Error("Expected context deadline error from Wait")
	}
}

func TestUnknownSourceGetsDefault(t *testing.T) {
	l := NewLimiter(nil, zaptest.NewLogger(t))

	limit := l.Limit("no-such-source")
	if limit.RequestsPerMinute <= 0 || limit.BurstSize <= 0 {
		t.Errorf("Expected conservative default for unknown source, got %+v", limit)
	}

	st := l.Status("no-such-source")
	if st.BurstSize != limit.BurstSize {
		t.Errorf("Status burst %d does not match limit %d", st.BurstSize, limit.BurstSize)
	}
}
