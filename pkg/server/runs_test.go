package server

import (
	"testing"

	"storyboard/pkg/story"
)

func TestWatchers_DeliverOnlyToCurrentStreams(t *testing.T) {
	t.Parallel()

	w := newWatchers()
	var a, b []story.EventKind
	req := storyboardReq{Text: "Once."}

	stopA := w.watch("k", req, func(ev story.Event) { a = append(a, ev.Kind) })
	stopB := w.watch("k", storyboardReq{Text: "ignored"}, func(ev story.Event) { b = append(b, ev.Kind) })
	if got, ok := w.request("k"); !ok || got != req {
		t.Fatalf("request=%+v,%v, want the first submission", got, ok)
	}

	w.publish("k", story.Event{Kind: story.EventProfile})
	stopA()
	stopA()
	w.publish("k", story.Event{Kind: story.EventScenes})
	w.publish("other", story.Event{Kind: story.EventPrompt})

	if len(a) != 1 || a[0] != story.EventProfile {
		t.Fatalf("first stream got %v", a)
	}
	if len(b) != 2 || b[1] != story.EventScenes {
		t.Fatalf("second stream got %v", b)
	}
	if w.count("k") != 1 {
		t.Fatalf("count=%d after one stream left", w.count("k"))
	}

	stopB()
	if _, ok := w.request("k"); ok || w.count("k") != 0 {
		t.Fatalf("run still tracked after every stream left")
	}

	// A later submission for the same key starts a fresh entry.
	stopC := w.watch("k", storyboardReq{Text: "Again."}, func(story.Event) {})
	defer stopC()
	if got, _ := w.request("k"); got.Text != "Again." {
		t.Fatalf("request=%+v", got)
	}
}
