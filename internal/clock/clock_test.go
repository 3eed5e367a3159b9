package clock

import (
	"testing"
	"time"
)

func TestMock_SleepAdvances(t *testing.T) {
	start := time.Date(2025, 11, 18, 11, 8, 53, 0, time.UTC)
	c := NewMock(start)

	c.Sleep(500 * time.Microsecond)
	c.Sleep(time.Second)

	if got := c.Since(start); got != time.Second+500*time.Microsecond {
		t.Errorf("Since() = %v, want 1.0005s", got)
	}
	if got := len(c.Sleeps()); got != 2 {
		t.Errorf("len(Sleeps()) = %d, want 2", got)
	}
}

func TestMock_Step(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewMock(start)
	c.Step = time.Millisecond

	first := c.Now()
	second := c.Now()

	if !first.Equal(start) {
		t.Errorf("first Now() = %v, want %v", first, start)
	}
	if second.Sub(first) != time.Millisecond {
		t.Errorf("Now() step = %v, want 1ms", second.Sub(first))
	}
}

func TestReal(t *testing.T) {
	var c Clock = Real{}
	before := c.Now()
	c.Sleep(time.Millisecond)
	if c.Since(before) < time.Millisecond {
		t.Error("Real clock should advance across Sleep")
	}
}
