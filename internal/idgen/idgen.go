// Package idgen names domain events with short, unique IDs that sort
// roughly by creation time: a prefix, the creation time in base-36
// milliseconds, and a nanoid suffix. The IDs are never used as token values.
package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefix starts every event ID.
const Prefix = "ev-"

const (
	alphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	randomLength = 8
)

// New returns an ID stamped with t.
func New(t time.Time) (string, error) {
	suffix, err := nanoid.Generate(alphabet, randomLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return Prefix + strconv.FormatInt(t.UnixMilli(), 36) + "-" + suffix, nil
}

// Time returns the creation time encoded in an ID made by New, to the
// millisecond.
func Time(id string) (time.Time, error) {
	stamp, _, ok := strings.Cut(strings.TrimPrefix(id, Prefix), "-")
	if !ok || !strings.HasPrefix(id, Prefix) {
		return time.Time{}, fmt.Errorf("idgen: malformed id %q", id)
	}
	ms, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("idgen: malformed id %q: %w", id, err)
	}
	return time.UnixMilli(ms), nil
}
