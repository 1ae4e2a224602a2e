package event

import (
	"github.com/alfredjeanlab/reflex/internal/model"
)

// Match evaluates each listener's condition against the event and returns the
// listeners that matched. The input order is preserved; callers pass listeners
// in creation order so rate-limit accounting and audit output are
// reproducible for a given event even under concurrent evaluation.
//
// Match is read-only and side-effect free, so concurrent calls over the same
// listeners are safe.
func Match(ev *model.Event, listeners []*model.Listener) []*model.Listener {
	var matched []*model.Listener
	for _, l := range listeners {
		if l.SourceID != ev.SourceID || !l.Enabled {
			continue
		}
		if l.Condition.Evaluate(ev.Payload) {
			matched = append(matched, l)
		}
	}
	return matched
}
