package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/model"
	"github.com/unclebandit/thunderlink/internal/queue"
)

// EventWorker processes campaign events taken off the queue
type EventWorker struct {
	mu      sync.Mutex
	handled map[model.EventKind]int
	dropped int
}

// Constructor
func NewEventWorker() *EventWorker {
	return &EventWorker{handled: make(map[model.EventKind]int)}
}

// Handle accepts either a raw JSON delivery or an in-process CampaignEvent.
// Undecodable payloads are dropped without retry.
func (w *EventWorker) Handle(payload any) error {
	ev, err := decodeEvent(payload)
	if err != nil {
		zap.L().Warn("⚠️ Invalid campaign event, dropping", zap.Error(err))
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		return nil
	}

	queue.LogEvent(ev)

	w.mu.Lock()
	w.handled[ev.Kind]++
	w.mu.Unlock()
	return nil
}

// Summary returns how many events of each kind were handled since start and
// how many payloads were dropped.
func (w *EventWorker) Summary() (map[model.EventKind]int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[model.EventKind]int, len(w.handled))
	for k, v := range w.handled {
		out[k] = v
	}
	return out, w.dropped
}

func decodeEvent(payload any) (model.CampaignEvent, error) {
	switch v := payload.(type) {
	case model.CampaignEvent:
		return v, nil
	case []byte:
		var ev model.CampaignEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return ev, err
		}
		if ev.Kind == "" {
			return ev, fmt.Errorf("event has no kind")
		}
		return ev, nil
	default:
		return model.CampaignEvent{}, fmt.Errorf("unexpected payload type %T", payload)
	}
}
