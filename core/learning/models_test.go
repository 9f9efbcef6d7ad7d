package learning

import (
	"regexp"
	"testing"
	"time"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{name: "nothing done", completed: 0, total: 3, want: 0},
		{name: "one third", completed: 1, total: 3, want: 33},
		{name: "two thirds rounds up", completed: 2, total: 3, want: 67},
		{name: "all done", completed: 3, total: 3, want: 100},
		{name: "unfinished never reports 100", completed: 199, total: 200, want: 99},
		{name: "more than total is capped", completed: 4, total: 3, want: 100},
		{name: "empty course, nothing done", completed: 0, total: 0, want: 0},
		{name: "empty course, one done", completed: 1, total: 0, want: 100},
		{name: "negative total is guarded", completed: 0, total: -2, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percent(tt.completed, tt.total); got != tt.want {
				t.Errorf("Percent(%d, %d) = %d; want %d", tt.completed, tt.total, got, tt.want)
			}
		})
	}
}

func TestIsFinished(t *testing.T) {
	tests := []struct {
		completed int
		total     int
		want      bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, true},
		{0, 0, false}, // guarded denominator is 1
		{1, 0, true},
	}
	for _, tt := range tests {
		if got := IsFinished(tt.completed, tt.total); got != tt.want {
			t.Errorf("IsFinished(%d, %d) = %t; want %t", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestNewCertificateNumber(t *testing.T) {
	issued := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	re := regexp.MustCompile(`^CERT-20240301-[0-9A-F]{12}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		num := NewCertificateNumber(issued)
		if !re.MatchString(num) {
			t.Fatalf("NewCertificateNumber() = %q; want format %s", num, re)
		}
		if seen[num] {
			t.Fatalf("NewCertificateNumber() returned %q twice", num)
		}
		seen[num] = true
	}
}

func TestEnrollment_IsCompleted(t *testing.T) {
	now := time.Now()
	if (Enrollment{Status: StatusCompleted}).IsCompleted() {
		t.Error("completed status without completed_at must not count as completed")
	}
	if !(Enrollment{Status: StatusCompleted, CompletedAt: &now}).IsCompleted() {
		t.Error("IsCompleted() = false; want true")
	}
	if (Enrollment{Status: StatusActive}).IsCompleted() {
		t.Error("IsCompleted() = true; want false")
	}
}
