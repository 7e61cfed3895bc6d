package network

import (
	"testing"
	"time"
)

func TestRetryBackoff(t *testing.T) {
	r := NewRetry(100*time.Millisecond, 3)

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		d, ok := r.Fail()
		if !ok {
			t.Fatalf("attempt %v: no attempts left", i)
		}
		if d != w {
			t.Errorf("attempt %v: delay = %v, want %v", i, d, w)
		}
	}
	if _, ok := r.Fail(); ok {
		t.Errorf("expected exhausted retry")
	}

	r.Success()
	if d, ok := r.Fail(); !ok || d != 100*time.Millisecond {
		t.Errorf("after reset: delay = %v (%v), want base", d, ok)
	}
}

func TestUid(t *testing.T) {
	u := NewUid()
	if !ValidUid(u) {
		t.Errorf("invalid uid: %v", u)
	}
	if u.Short() == "" || len(u.Short()) != 7 {
		t.Errorf("unexpected short form: %v", u.Short())
	}
	if ValidUid(EmptyUid) {
		t.Errorf("empty uid can't be valid")
	}
}
