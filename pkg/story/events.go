package story

import "storyboard/pkg/schema"

type EventKind string

const (
	EventChunks  EventKind = "chunks"
	EventProfile EventKind = "profile"
	EventSplit   EventKind = "split"
	EventScenes  EventKind = "scenes"
	EventPrompt  EventKind = "prompt"
	EventFailure EventKind = "failure"
)

// Event reports run progress. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind                `json:"kind"`
	Index   int                      `json:"index,omitempty"`
	Total   int                      `json:"total,omitempty"`
	Profile *schema.CharacterProfile `json:"profile,omitempty"`
	Scenes  []schema.Scene           `json:"scenes,omitempty"`
	Scene   *schema.Scene            `json:"scene,omitempty"`
	Failure *schema.Failure          `json:"failure,omitempty"`
}

type emitter func(Event)

func (e emitter) emit(ev Event) {
	if e != nil {
		e(ev)
	}
}
