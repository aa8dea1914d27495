package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a ULID stamped with the current time.
func NewID() string {
	return NewIDAt(time.Now())
}

// NewIDAt returns a ULID whose timestamp part is t, so ids of races and
// drivers sort in creation order.
func NewIDAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// ValidID reports whether s is a well-formed ULID.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
