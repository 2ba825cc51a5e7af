package moodlogs

import (
	"sort"
	"time"

	"github.com/hazelgrove/moodsync/internal/models"
)

const topTagLimit = 10

type RatingCount struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

type DailyPoint struct {
	Date       string `json:"date"`
	MoodRating int    `json:"moodRating"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Analytics aggregates a user's entries for the overview screens: the rating
// distribution feeds the pie chart, the daily series the line chart.
type Analytics struct {
	TotalEntries  int           `json:"totalEntries"`
	AverageRating float64       `json:"averageRating"`
	Distribution  []RatingCount `json:"distribution"`
	Daily         []DailyPoint  `json:"daily"`
	TopTags       []TagCount    `json:"topTags"`
	CurrentStreak int           `json:"currentStreak"`
	LongestStreak int           `json:"longestStreak"`
}

// BuildAnalytics computes aggregates over the given entries. Entries with
// unparseable dates are skipped; duplicates per date cannot occur upstream.
func BuildAnalytics(entries []models.MoodLogEntry, now time.Time) Analytics {
	analytics := Analytics{
		Distribution: make([]RatingCount, 0, models.MoodRatingMax),
		Daily:        make([]DailyPoint, 0, len(entries)),
		TopTags:      []TagCount{},
	}

	ratingCounts := make(map[int]int)
	tagCounts := make(map[string]int)
	ratingSum := 0
	dates := make([]time.Time, 0, len(entries))

	sorted := make([]models.MoodLogEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	for _, entry := range sorted {
		date, err := time.Parse(models.EntryDateLayout, entry.Date)
		if err != nil {
			continue
		}

		analytics.TotalEntries++
		ratingSum += entry.MoodRating
		ratingCounts[entry.MoodRating]++
		for _, tag := range entry.Tags {
			tagCounts[tag]++
		}
		analytics.Daily = append(analytics.Daily, DailyPoint{Date: entry.Date, MoodRating: entry.MoodRating})
		dates = append(dates, date)
	}

	if analytics.TotalEntries > 0 {
		analytics.AverageRating = float64(ratingSum) / float64(analytics.TotalEntries)
	}

	for rating := models.MoodRatingMin; rating <= models.MoodRatingMax; rating++ {
		analytics.Distribution = append(analytics.Distribution, RatingCount{Rating: rating, Count: ratingCounts[rating]})
	}

	analytics.TopTags = topTags(tagCounts, topTagLimit)
	analytics.CurrentStreak, analytics.LongestStreak = streaks(dates, now)
	return analytics
}

func topTags(counts map[string]int, limit int) []TagCount {
	tags := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count == tags[j].Count {
			return tags[i].Tag < tags[j].Tag
		}
		return tags[i].Count > tags[j].Count
	})
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}

// streaks computes the longest run of consecutive logged days, and the run
// ending today (or yesterday, when today has no entry yet).
func streaks(dates []time.Time, now time.Time) (current int, longest int) {
	if len(dates) == 0 {
		return 0, 0
	}

	run := 1
	longest = 1
	for index := 1; index < len(dates); index++ {
		if sameDay(dates[index-1].AddDate(0, 0, 1), dates[index]) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	last := dates[len(dates)-1]
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if sameDay(last, today) || sameDay(last.AddDate(0, 0, 1), today) {
		current = run
	}
	return current, longest
}

func sameDay(a time.Time, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
