package lineimport

import (
	"sort"
	"strings"
	"time"
)

// WeekKeyLayout formats the Monday that identifies a weekly bucket
const WeekKeyLayout = "2006-01-02"

// WeeklyBucket collects the terms of every event in one Monday–Sunday week
type WeeklyBucket struct {
	Key       string
	WeekStart time.Time
	WeekEnd   time.Time
	Keywords  []string
	Syndromes []string
}

// WeekStart returns Monday 00:00 of t's week in t's location
func WeekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// WeekEnd returns Sunday 23:59:59.999 of t's week
func WeekEnd(t time.Time) time.Time {
	start := WeekStart(t)
	y, m, d := start.Date()
	return time.Date(y, m, d+6, 23, 59, 59, int(999*time.Millisecond), start.Location())
}

// AggregateWeekly buckets events by Monday-aligned week. Terms are de-duplicated
// per bucket keeping first-seen order, and buckets are sorted by start date.
func AggregateWeekly(events []ChatMessageEvent) []WeeklyBucket {
	type acc struct {
		bucket        WeeklyBucket
		seenKeywords  map[string]struct{}
		seenSyndromes map[string]struct{}
	}

	byKey := make(map[string]*acc)
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			continue
		}
		start := WeekStart(ev.Timestamp)
		key := start.Format(WeekKeyLayout)

		a, ok := byKey[key]
		if !ok {
			a = &acc{
				bucket: WeeklyBucket{
					Key:       key,
					WeekStart: start,
					WeekEnd:   WeekEnd(ev.Timestamp),
					Keywords:  []string{},
					Syndromes: []string{},
				},
				seenKeywords:  make(map[string]struct{}),
				seenSyndromes: make(map[string]struct{}),
			}
			byKey[key] = a
		}

		a.bucket.Keywords = appendUnique(a.bucket.Keywords, a.seenKeywords, ev.Keywords)
		a.bucket.Syndromes = appendUnique(a.bucket.Syndromes, a.seenSyndromes, ev.SyndromeHints)
	}

	buckets := make([]WeeklyBucket, 0, len(byKey))
	for _, a := range byKey {
		buckets = append(buckets, a.bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].WeekStart.Before(buckets[j].WeekStart)
	})
	return buckets
}

func appendUnique(dst []string, seen map[string]struct{}, terms []string) []string {
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		dst = append(dst, t)
	}
	return dst
}

// UniqueTerms trims and de-duplicates terms, keeping first-seen order
func UniqueTerms(terms []string) []string {
	return appendUnique([]string{}, make(map[string]struct{}), terms)
}
