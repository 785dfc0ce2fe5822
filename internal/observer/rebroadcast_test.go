package observer

import "testing"

func TestRebroadcastReplayAfter(t *testing.T) {
	b := NewRebroadcast(10)
	e1 := b.Append("game_event", map[string]any{"n": 1})
	e2 := b.Append("game_event", map[string]any{"n": 2})
	e3 := b.Append("hand_completed", nil)

	if e1.EventID != "1" || e2.EventID != "2" || e3.EventID != "3" {
		t.Fatalf("unexpected event ids: %s %s %s", e1.EventID, e2.EventID, e3.EventID)
	}
	replay := b.ReplayAfter("1")
	if len(replay) != 2 || replay[0].EventID != "2" || replay[1].EventID != "3" {
		t.Fatalf("ReplayAfter(1) = %+v", replay)
	}
	if got := b.ReplayAfter(""); len(got) != 3 {
		t.Fatalf("ReplayAfter(\"\") returned %d entries, want 3", len(got))
	}
	if got := b.ReplayAfter("junk"); len(got) != 3 {
		t.Fatalf("ReplayAfter(junk) returned %d entries, want 3", len(got))
	}
}

func TestRebroadcastBounded(t *testing.T) {
	b := NewRebroadcast(2)
	b.Append("a", nil)
	b.Append("b", nil)
	b.Append("c", nil)
	replay := b.ReplayAfter("")
	if len(replay) != 2 || replay[0].Event != "b" {
		t.Fatalf("replay = %+v, want last two entries", replay)
	}
}

func TestRebroadcastSubscribe(t *testing.T) {
	b := NewRebroadcast(10)
	ch := b.Subscribe()
	b.Append("a", nil)
	select {
	case e := <-ch:
		if e.Event != "a" {
			t.Fatalf("got %+v", e)
		}
	default:
		t.Fatal("watcher channel empty")
	}
	b.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	b.Close()
	if got := b.Append("b", nil); got.EventID != "" {
		t.Fatalf("append after close = %+v, want zero entry", got)
	}
}
