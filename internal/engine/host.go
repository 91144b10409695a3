package engine

import (
	"context"
	"fmt"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

// host is the plugin.Host handed to actions of one invocation.
type host struct {
	d   *dispatch
	inv *invocation
}

var _ plugin.Host = (*host)(nil)

// Publish queues ev on the publishing invocation. It is dispatched after
// that invocation's walk returns.
func (h *host) Publish(ev plugin.HostEvent) {
	h.d.engine.logger.Debug("queued re-entrant event",
		"invocation", h.inv.id,
		"event", ev.ID,
		"queued", h.inv.queue.Len()+1)
	h.inv.queue.Enqueue(pendingEvent{event: ev, depth: h.inv.depth + 1})
}

// Invoke runs the event nodes of modelID that subscribe to ev.ID, right
// now, each with a fresh context seeded only from ev. Sub-model invocations
// draw from the caller's budget. The returned reports are those of the
// direct sub-model invocations, in execution order.
func (h *host) Invoke(ctx context.Context, modelID string, ev plugin.HostEvent) ([]ir.InvocationReport, error) {
	d := h.d
	if _, ok := d.snap.Graph(modelID); !ok {
		return nil, &RuntimeError{
			Code:    ErrCodeUnknownModel,
			Message: fmt.Sprintf("model %q is not enabled or not indexed", modelID),
			ModelID: modelID,
		}
	}

	var slots []int
	for _, entry := range d.snap.Lookup(ev.ID) {
		if entry.ModelID != modelID {
			continue
		}
		if slot := d.run(ctx, entry, ev, h.inv.depth+1, h.inv.budget, false); slot >= 0 {
			slots = append(slots, slot)
		}
	}
	if len(slots) == 0 {
		return nil, &RuntimeError{
			Code:    ErrCodeNoEntry,
			Message: fmt.Sprintf("no event node of model %q subscribes to %s", modelID, ev.ID),
			ModelID: modelID,
		}
	}

	reports := make([]ir.InvocationReport, len(slots))
	for i, slot := range slots {
		reports[i] = d.reports[slot]
	}
	return reports, nil
}
