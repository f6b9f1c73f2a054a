package clock

import (
	"testing"
	"time"
)

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewFixed(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("expected %v got %v", start, got)
	}
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("advance: got %v", got)
	}
	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("set: got %v", got)
	}
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	if got.Before(before) {
		t.Fatalf("real clock went backwards: %v < %v", got, before)
	}
}
