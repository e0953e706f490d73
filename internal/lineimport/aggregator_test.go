package lineimport

import (
	"reflect"
	"testing"
	"time"
)

func event(ts time.Time, keywords, syndromes []string) ChatMessageEvent {
	return ChatMessageEvent{Timestamp: ts, Keywords: keywords, SyndromeHints: syndromes}
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, taipei)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday midnight", monday, monday},
		{"wednesday afternoon", time.Date(2025, 1, 8, 15, 0, 0, 0, taipei), monday},
		{"sunday last second", time.Date(2025, 1, 12, 23, 59, 59, 0, taipei), monday},
		{"next monday", time.Date(2025, 1, 13, 0, 0, 0, 0, taipei), monday.AddDate(0, 0, 7)},
		{"across month boundary", time.Date(2025, 3, 2, 8, 0, 0, 0, taipei), time.Date(2025, 2, 24, 0, 0, 0, 0, taipei)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekStart(tt.in); !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWeekEnd(t *testing.T) {
	got := WeekEnd(time.Date(2025, 1, 8, 15, 0, 0, 0, taipei))
	want := time.Date(2025, 1, 12, 23, 59, 59, int(999*time.Millisecond), taipei)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAggregateWeekly_Boundaries(t *testing.T) {
	buckets := AggregateWeekly([]ChatMessageEvent{
		event(time.Date(2025, 1, 13, 0, 0, 0, 0, taipei), []string{"口乾"}, nil),
		event(time.Date(2025, 1, 6, 0, 0, 0, 0, taipei), []string{"頭痛"}, nil),
		event(time.Date(2025, 1, 12, 23, 59, 59, 0, taipei), []string{"失眠"}, []string{"肝陽上亢"}),
	})

	if len(buckets) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Key != "2025-01-06" || buckets[1].Key != "2025-01-13" {
		t.Errorf("Buckets not sorted by week start: %s, %s", buckets[0].Key, buckets[1].Key)
	}
	if !reflect.DeepEqual(buckets[0].Keywords, []string{"頭痛", "失眠"}) {
		t.Errorf("Unexpected first week keywords: %v", buckets[0].Keywords)
	}
	if !reflect.DeepEqual(buckets[0].Syndromes, []string{"肝陽上亢"}) {
		t.Errorf("Unexpected first week syndromes: %v", buckets[0].Syndromes)
	}
	if len(buckets[1].Syndromes) != 0 || buckets[1].Syndromes == nil {
		t.Errorf("Expected empty non-nil syndromes, got %#v", buckets[1].Syndromes)
	}
}

func TestAggregateWeekly_Dedup(t *testing.T) {
	day := time.Date(2025, 1, 7, 10, 0, 0, 0, taipei)
	buckets := AggregateWeekly([]ChatMessageEvent{
		event(day, []string{"頭痛", "失眠"}, nil),
		event(day.Add(time.Hour), []string{" 頭痛 ", "眩暈"}, nil),
		event(day.Add(2*time.Hour), []string{"", "頭痛"}, nil),
	})

	if len(buckets) != 1 {
		t.Fatalf("Expected 1 bucket, got %d", len(buckets))
	}
	want := []string{"頭痛", "失眠", "眩暈"}
	if !reflect.DeepEqual(buckets[0].Keywords, want) {
		t.Errorf("Expected %v, got %v", want, buckets[0].Keywords)
	}
}

func TestAggregateWeekly_SkipsZeroTimestamp(t *testing.T) {
	buckets := AggregateWeekly([]ChatMessageEvent{event(time.Time{}, []string{"頭痛"}, nil)})
	if len(buckets) != 0 {
		t.Errorf("Expected no buckets, got %d", len(buckets))
	}
}

func TestUniqueTerms(t *testing.T) {
	got := UniqueTerms([]string{"a", " b", "a", "", "b "})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected [a b], got %v", got)
	}
}
