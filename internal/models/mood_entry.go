package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MoodRatingMin = 1
	MoodRatingMax = 5
)

// EntryDateLayout is the per-day entry key, which doubles as the remote
// document identifier.
const EntryDateLayout = "2006-01-02"

var (
	ErrInvalidEntryDate  = errors.New("invalid entry date")
	ErrInvalidMoodRating = errors.New("mood rating out of range")
)

// MoodLogEntry is the newer per-day model: one entry per user per calendar
// date, rated 1-5 with optional tags and a note. Writing the same date again
// overwrites the previous entry.
type MoodLogEntry struct {
	Date       string    `json:"date" bson:"date"`
	MoodRating int       `json:"moodRating" bson:"moodRating"`
	Tags       []string  `json:"tags" bson:"tags"`
	Note       string    `json:"note,omitempty" bson:"note,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Normalize trims and deduplicates tags in place, preserving first-seen order.
func (entry *MoodLogEntry) Normalize() {
	seen := make(map[string]struct{}, len(entry.Tags))
	tags := make([]string, 0, len(entry.Tags))
	for _, tag := range entry.Tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		tags = append(tags, trimmed)
	}
	entry.Tags = tags
}

func (entry *MoodLogEntry) Validate() error {
	if _, err := time.Parse(EntryDateLayout, entry.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEntryDate, entry.Date)
	}
	if entry.MoodRating < MoodRatingMin || entry.MoodRating > MoodRatingMax {
		return fmt.Errorf("%w: %d", ErrInvalidMoodRating, entry.MoodRating)
	}
	return nil
}
