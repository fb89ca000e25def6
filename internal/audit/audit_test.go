package audit

import (
	"fmt"
	"testing"
)

func TestLogCapsEntriesNewestFirst(t *testing.T) {
	l := NewLog(3)

	for i := 0; i < 5; i++ {
		l.Record(Entry{ID: fmt.Sprintf("e%d", i)})
	}

	got := l.Recent()
	if len(got) != 3 {
		t.Fatalf("len=%d, expected 3", len(got))
	}
	if got[0].ID != "e4" || got[2].ID != "e2" {
		t.Fatalf("order wrong: %v", got)
	}
}

func TestRecentReturnsCopy(t *testing.T) {
	l := NewLog(5)
	l.Record(Entry{ID: "a"})

	snap := l.Recent()
	snap[0].ID = "mutated"

	if l.Recent()[0].ID != "a" {
		t.Fatal("Recent must return a copy")
	}
}
