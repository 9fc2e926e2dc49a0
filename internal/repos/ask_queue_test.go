package repos

import (
	"testing"
	"time"
)

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 5 * time.Minute},
		{10, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := RetryBackoff(c.attempt); got != c.want {
			t.Fatalf("RetryBackoff(%d): want=%v got=%v", c.attempt, c.want, got)
		}
	}
}

func TestPGInterval(t *testing.T) {
	if got := pgInterval(90 * time.Second); got != "90000 milliseconds" {
		t.Fatalf("pgInterval: want=%q got=%q", "90000 milliseconds", got)
	}
}
