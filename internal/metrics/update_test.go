package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStat(t *testing.T) {
	ResetStats()

	RecordStat("wpcom-desktop-update", "linux-1-2-3-confirm")
	RecordStat("wpcom-desktop-update", "linux-1-2-3-confirm")
	RecordStat("wpcom-desktop-update-check", "linux-1-2-3-no-update")

	got := testutil.ToFloat64(statsBumps.WithLabelValues("wpcom-desktop-update", "linux-1-2-3-confirm"))
	if got != 2 {
		t.Errorf("counter = %v, want 2", got)
	}

	counts := GetStatCounts()
	if len(counts) != 2 {
		t.Fatalf("len(counts) = %d, want 2", len(counts))
	}
	// Sorted by group
	if counts[0].Group != "wpcom-desktop-update" || counts[0].Count != 2 {
		t.Errorf("counts[0] = %+v, want wpcom-desktop-update x2", counts[0])
	}
	if counts[1].Group != "wpcom-desktop-update-check" || counts[1].Count != 1 {
		t.Errorf("counts[1] = %+v, want wpcom-desktop-update-check x1", counts[1])
	}

	ResetStats()
	if n := len(GetStatCounts()); n != 0 {
		t.Errorf("expected empty stats after reset, got %d", n)
	}
}

func TestRecordStatConcurrent(t *testing.T) {
	ResetStats()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				RecordStat("group", "name")
			}
		}()
	}
	wg.Wait()

	counts := GetStatCounts()
	if len(counts) != 1 || counts[0].Count != 1000 {
		t.Errorf("counts = %+v, want single entry with 1000", counts)
	}
	ResetStats()
}

func TestSetUpdateState(t *testing.T) {
	SetUpdateState("checking")
	SetUpdateState("available")

	if got := testutil.ToFloat64(updateState.WithLabelValues("available")); got != 1 {
		t.Errorf("available = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(updateState); n != 1 {
		t.Errorf("series = %d, want 1 (previous state cleared)", n)
	}
}

func TestRecordPrompt(t *testing.T) {
	before := testutil.ToFloat64(updatePrompts.WithLabelValues("declined"))
	RecordPrompt("declined")
	after := testutil.ToFloat64(updatePrompts.WithLabelValues("declined"))
	if after-before != 1 {
		t.Errorf("declined delta = %v, want 1", after-before)
	}
}
