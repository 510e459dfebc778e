package event

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory event source for tests and development.
type MemoryRepository struct {
	mu           sync.RWMutex
	events       map[string]Event
	participants map[string]Participant
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events:       make(map[string]Event),
		participants: make(map[string]Participant),
	}
}

// PutEvent installs or replaces an event.
func (r *MemoryRepository) PutEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.ID] = ev
}

// PutParticipant installs or replaces a participant.
func (r *MemoryRepository) PutParticipant(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// GetEvent fetches an event by id.
func (r *MemoryRepository) GetEvent(_ context.Context, id string) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return ev, nil
}

// GetParticipant resolves a participant by the (event, user) pair.
func (r *MemoryRepository) GetParticipant(_ context.Context, eventID, userID string) (Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.EventID == eventID && p.UserID == userID {
			return p, nil
		}
	}
	return Participant{}, ErrParticipantNotFound
}

// GetParticipantByID resolves a participant by its own id.
func (r *MemoryRepository) GetParticipantByID(_ context.Context, id string) (Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, ErrParticipantNotFound
	}
	return p, nil
}
