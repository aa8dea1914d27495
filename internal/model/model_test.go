package model

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
	if !ValidID(id) {
		t.Errorf("ValidID(%q) = false, want true", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestNewIDAtSortsByTime(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	earlier := NewIDAt(t0)
	later := NewIDAt(t0.Add(time.Second))
	if earlier >= later {
		t.Errorf("NewIDAt ids not ordered: %s >= %s", earlier, later)
	}
}

func TestValidIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "nonexistent", "123", strings.Repeat("Z", 27)} {
		if ValidID(s) {
			t.Errorf("ValidID(%q) = true, want false", s)
		}
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusUpcoming, StatusInProgress, true},
		{StatusInProgress, StatusFinished, true},
		{StatusUpcoming, StatusFinished, false},
		{StatusInProgress, StatusUpcoming, false},
		{StatusFinished, StatusInProgress, false},
		{StatusFinished, StatusUpcoming, false},
		{"bogus", StatusInProgress, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidModeTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{ModeSafe, ModeHazard, true},
		{ModeHazard, ModeSafe, true},
		{ModeDanger, ModeHazard, true},
		{ModeSafe, ModeFinish, true},
		{ModeFinish, ModeSafe, false},
		{ModeFinish, ModeFinish, false},
		{ModeSafe, "purple", false},
	}
	for _, tt := range tests {
		if got := ValidModeTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidModeTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRaceDeadline(t *testing.T) {
	r := &Race{DurationMS: 60000}
	if _, ok := r.Deadline(); ok {
		t.Fatal("Deadline() ok = true for a race that has not started")
	}

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.StartTime = &start
	got, ok := r.Deadline()
	if !ok {
		t.Fatal("Deadline() ok = false for a started race")
	}
	if want := start.Add(time.Minute); !got.Equal(want) {
		t.Errorf("Deadline() = %v, want %v", got, want)
	}
}

func TestNormalizeDriverName(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"Alice", "Alice", false},
		{"  Bob  ", "Bob", false},
		{"", "", true},
		{"   ", "", true},
		{strings.Repeat("x", MaxDriverNameLen), strings.Repeat("x", MaxDriverNameLen), false},
		{strings.Repeat("x", MaxDriverNameLen+1), "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeDriverName(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeDriverName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalid) {
			t.Errorf("NormalizeDriverName(%q) error does not wrap ErrInvalid: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("NormalizeDriverName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"safe", ModeSafe, false},
		{"HAZARD", ModeHazard, false},
		{" Danger ", ModeDanger, false},
		{"finish", ModeFinish, false},
		{"purple", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateCarNumber(t *testing.T) {
	for n := 1; n <= MaxDrivers; n++ {
		if err := ValidateCarNumber(n); err != nil {
			t.Errorf("ValidateCarNumber(%d) = %v, want nil", n, err)
		}
	}
	for _, n := range []int{-1, 0, MaxDrivers + 1} {
		if err := ValidateCarNumber(n); !errors.Is(err, ErrInvalid) {
			t.Errorf("ValidateCarNumber(%d) = %v, want ErrInvalid", n, err)
		}
	}
}

func TestValidateDriverCountAndTimestamp(t *testing.T) {
	if err := ValidateDriverCount(MaxDrivers); err != nil {
		t.Errorf("ValidateDriverCount(max) = %v", err)
	}
	if err := ValidateDriverCount(MaxDrivers + 1); err == nil {
		t.Error("ValidateDriverCount(max+1) = nil, want error")
	}
	if err := ValidateTimestamp(0); err != nil {
		t.Errorf("ValidateTimestamp(0) = %v", err)
	}
	if err := ValidateTimestamp(-5); err == nil {
		t.Error("ValidateTimestamp(-5) = nil, want error")
	}
}
