package logbus

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSnapshotKeepsLastMessages(t *testing.T) {
	b := New(2)
	b.Log("info", "one", nil)
	b.Log("info", "two", nil)
	b.Log("info", "three", nil)

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2", len(snap))
	}
	if got := snap[1].Data.(LogEvent).Msg; got != "three" {
		t.Fatalf("last msg = %q", got)
	}
	if snap[0].Seq != 2 || snap[1].Seq != 3 {
		t.Fatalf("seqs = %d,%d, want 2,3", snap[0].Seq, snap[1].Seq)
	}
}

func TestSnapshotOrderAfterWrap(t *testing.T) {
	b := New(3)
	for i := 0; i < 7; i++ {
		b.PublishImportProgress(ImportProgressEvent{Done: i})
	}
	snap := b.Snapshot()
	var got []int
	for _, m := range snap {
		got = append(got, m.Data.(ImportProgressEvent).Done)
	}
	if len(got) != 3 || got[0] != 4 || got[1] != 5 || got[2] != 6 {
		t.Fatalf("done values = %v, want [4 5 6]", got)
	}
}

func TestFollowHasNoGap(t *testing.T) {
	b := New(4)
	b.Log("info", "before", nil)
	hist, ch, cancel := b.Follow(4)
	defer cancel()
	b.PublishProfileState(ProfileStateEvent{AccountID: "a1", State: "synced", ProfileID: "p1"})

	if len(hist) != 1 || hist[0].Seq != 1 {
		t.Fatalf("history = %+v", hist)
	}
	msg := <-ch
	if msg.Seq != 2 || msg.Type != TypeProfileState {
		t.Fatalf("live = %+v", msg)
	}
	if ev := msg.Data.(ProfileStateEvent); ev.AccountID != "a1" || ev.ProfileID != "p1" {
		t.Fatalf("event = %+v", ev)
	}
	cancel()
	cancel()
}

func TestNilBusDiscards(t *testing.T) {
	var b *Bus
	b.Log("info", "dropped", nil)
	b.PublishImportProgress(ImportProgressEvent{})
	if b.Snapshot() != nil {
		t.Fatal("nil bus returned history")
	}
	b.Close()
}

func TestSubscribeReceivesPublished(t *testing.T) {
	b := New(10)
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.PublishImportProgress(ImportProgressEvent{Done: 1})
	msg := <-ch
	if msg.Type != TypeImportProgress {
		t.Fatalf("type = %q", msg.Type)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := New(10)
	ch, _ := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Log("info", "after close", nil)
}

func TestLogMirrorsToSink(t *testing.T) {
	var buf bytes.Buffer
	b := NewWithLogger(10, NewLoggerWithWriter(&buf, "debug"))
	b.Log("warn", "vision call failed", map[string]any{"accountId": "a1"})

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("sink output is not json: %q", line)
	}
	if got["level"] != "warn" || got["message"] != "vision call failed" || got["accountId"] != "a1" {
		t.Fatalf("unexpected sink record %v", got)
	}
}

func TestSinkRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	b := NewWithLogger(10, NewLoggerWithWriter(&buf, "info"))
	b.Log("debug", "noise", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug record should be filtered, got %q", buf.String())
	}
	if len(b.Snapshot()) != 1 {
		t.Fatal("bus should still keep filtered records")
	}
}
