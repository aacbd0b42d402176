package fabric

import (
	"context"
	"sync"

	"github.com/liveriver/fabric/internal/logger"
)

// TriggerEvent names a point in a stream's lifecycle where the Manager
// notifies registered triggers: session creation, publisher attach/detach,
// subscriber join/leave and session teardown.
type TriggerEvent string

const (
	TriggerCreateSession TriggerEvent = "create_session"
	TriggerPublish       TriggerEvent = "publish"
	TriggerUnpublish     TriggerEvent = "unpublish"
	TriggerJoin          TriggerEvent = "join"
	TriggerLeave         TriggerEvent = "leave"
	TriggerEndSession    TriggerEvent = "end_session"
)

// TriggerContext carries the event and the stream identity handed to a
// Trigger.
type TriggerContext struct {
	Event     TriggerEvent
	StreamKey string
}

// Trigger is invoked asynchronously whenever its registered event fires.
// Triggers are best-effort: a panic inside one is recovered and logged, never
// propagated back to the Channel whose action caused the event.
type Trigger func(ctx context.Context, tc TriggerContext)

// triggerRegistry fans lifecycle events out to registered triggers, run
// concurrently so a slow trigger never stalls the Channel that fired it.
type triggerRegistry struct {
	mu       sync.RWMutex
	triggers map[TriggerEvent][]Trigger
}

func newTriggerRegistry() *triggerRegistry {
	return &triggerRegistry{triggers: make(map[TriggerEvent][]Trigger)}
}

// RegisterTrigger adds fn to the set invoked whenever event fires.
func (r *triggerRegistry) RegisterTrigger(event TriggerEvent, fn Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[event] = append(r.triggers[event], fn)
}

func (r *triggerRegistry) fire(ctx context.Context, tc TriggerContext) {
	r.mu.RLock()
	fns := append([]Trigger(nil), r.triggers[tc.Event]...)
	r.mu.RUnlock()
	for _, fn := range fns {
		go func(fn Trigger) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Logger().Error().
						Str("event", string(tc.Event)).
						Str("stream_key", tc.StreamKey).
						Interface("panic", rec).
						Msg("trigger panicked")
				}
			}()
			fn(ctx, tc)
		}(fn)
	}
}
