package client

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/google/uuid"
)

var (
	ErrUnknownPending = errors.New("unknown pending message")
	ErrNotFailed      = errors.New("message has not failed")
)

// LocalIDPrefix marks provisional ids. Server ids never carry it.
const LocalIDPrefix = "local-"

type EntryState string

const (
	StatePending   EntryState = "pending"
	StateFailed    EntryState = "failed"
	StateConfirmed EntryState = "confirmed"
)

type Entry struct {
	Message models.Message
	State   EntryState
	// CorrelationID is set on entries created by AddPending.
	CorrelationID string

	seq     uint64
	at      time.Time
	retried bool
}

// Timeline is one client's view of a group's messages. It merges optimistic
// sends, history loads and channel events into a list without duplicates,
// ordered by creation time and then by insertion.
type Timeline struct {
	mu      sync.Mutex
	selfID  string
	seq     uint64
	entries []*Entry
	byID    map[string]*Entry
	pending map[string]*Entry
	// early holds the caller's own messages seen on the channel before the
	// send that created them was acknowledged.
	early map[string]models.Message
	// ahead holds status changes for messages not seen yet.
	ahead     map[string]models.Status
	delivered map[string]struct{}
}

func NewTimeline(selfID string) *Timeline {
	return &Timeline{
		selfID:    selfID,
		byID:      make(map[string]*Entry),
		pending:   make(map[string]*Entry),
		early:     make(map[string]models.Message),
		ahead:     make(map[string]models.Status),
		delivered: make(map[string]struct{}),
	}
}

// AddPending inserts draft optimistically and returns the correlation id
// that Acknowledge, Fail and Retry take.
func (t *Timeline) AddPending(draft models.Message) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	corrID := uuid.NewString()
	draft.ID = LocalIDPrefix + corrID
	draft.Status = models.StatusSent
	if draft.SenderID == "" {
		draft.SenderID = t.selfID
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}

	e := &Entry{Message: draft, State: StatePending, CorrelationID: corrID}
	t.insert(e)
	t.pending[corrID] = e
	return corrID
}

// Acknowledge replaces the provisional entry with the stored record. The entry
// keeps its display position even when the server clock disagrees with ours.
func (t *Timeline) Acknowledge(corrID string, stored models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[corrID]
	if !ok {
		return ErrUnknownPending
	}
	delete(t.pending, corrID)
	if held, ok := t.early[stored.ID]; ok {
		stored.Status = stored.Status.Max(held.Status)
		delete(t.early, stored.ID)
	}

	if dup, ok := t.byID[stored.ID]; ok && dup != e {
		stored.Status = stored.Status.Max(dup.Message.Status)
		t.remove(dup)
	}
	delete(t.byID, e.Message.ID)

	e.Message = stored.Clone()
	e.State = StateConfirmed
	t.byID[stored.ID] = e
	t.applyAhead(e)
	t.flushEarly()
	return nil
}

// Fail records a failed send. The first failure keeps the entry, marked
// failed, so it can be retried; a failure after Retry drops it. Fail reports
// whether the entry was removed.
func (t *Timeline) Fail(corrID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[corrID]
	if !ok {
		return false, ErrUnknownPending
	}
	if !e.retried {
		e.State = StateFailed
		t.flushEarly()
		return false, nil
	}

	delete(t.pending, corrID)
	t.remove(e)
	t.flushEarly()
	return true, nil
}

// Retry puts a failed entry back in flight and returns its draft.
func (t *Timeline) Retry(corrID string) (models.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[corrID]
	if !ok {
		return models.Message{}, ErrUnknownPending
	}
	if e.State != StateFailed {
		return models.Message{}, ErrNotFailed
	}
	e.State = StatePending
	e.retried = true
	return e.Message, nil
}

// ApplyEvent merges a channel event and reports whether the view changed.
func (t *Timeline) ApplyEvent(event models.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := event.(type) {
	case models.MessageCreated:
		return t.merge(ev.Message)
	case models.StatusChanged:
		e, ok := t.byID[ev.MessageID]
		if !ok {
			if held, ok := t.early[ev.MessageID]; ok {
				held.Status = held.Status.Max(ev.Status)
				t.early[ev.MessageID] = held
				return false
			}
			t.ahead[ev.MessageID] = t.ahead[ev.MessageID].Max(ev.Status)
			return false
		}
		if !e.Message.Status.Forward(ev.Status) {
			return false
		}
		e.Message.Status = ev.Status
		return true
	case models.VoteRecorded:
		e, ok := t.byID[ev.MessageID]
		if !ok || e.Message.Poll == nil || len(ev.Counts) != len(e.Message.Poll.Options) {
			return false
		}
		poll := e.Message.Poll.Clone()
		for i := range poll.Options {
			poll.Options[i].Count = ev.Counts[i]
		}
		e.Message.Poll = &poll
		return true
	default:
		return false
	}
}

// MergeHistory folds a loaded history into the view.
func (t *Timeline) MergeHistory(messages []models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, m := range messages {
		if t.merge(m) {
			changed = true
		}
	}
	return changed
}

func (t *Timeline) merge(m models.Message) bool {
	if e, ok := t.byID[m.ID]; ok {
		// Known messages only advance status. Counts come from VoteRecorded.
		if !e.Message.Status.Forward(m.Status) {
			return false
		}
		e.Message.Status = m.Status
		return true
	}
	if _, ok := t.early[m.ID]; ok {
		return false
	}
	if m.SenderID == t.selfID && t.inFlight() {
		t.early[m.ID] = m.Clone()
		return false
	}

	e := &Entry{Message: m.Clone(), State: StateConfirmed}
	t.insert(e)
	t.byID[m.ID] = e
	t.applyAhead(e)
	return true
}

// NeedsDelivered reports, once per message, that a message someone else sent
// is still only sent and should be acknowledged as delivered.
func (t *Timeline) NeedsDelivered(m models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.SenderID == t.selfID || m.Status != models.StatusSent || m.ID == "" {
		return false
	}
	if _, done := t.delivered[m.ID]; done {
		return false
	}
	t.delivered[m.ID] = struct{}{}
	return true
}

// Entries returns a snapshot in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		cp := *e
		cp.Message = e.Message.Clone()
		out = append(out, cp)
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// Entry looks up a stored message by its server id.
func (t *Timeline) Entry(id string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.Message = e.Message.Clone()
	return cp, true
}

func (t *Timeline) Self() string {
	return t.selfID
}

func (t *Timeline) Messages() []models.Message {
	entries := t.Entries()
	out := make([]models.Message, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func (t *Timeline) insert(e *Entry) {
	t.seq++
	e.seq = t.seq
	e.at = e.Message.CreatedAt
	t.entries = append(t.entries, e)
}

func (t *Timeline) remove(e *Entry) {
	t.entries = slices.DeleteFunc(t.entries, func(x *Entry) bool { return x == e })
	if t.byID[e.Message.ID] == e {
		delete(t.byID, e.Message.ID)
	}
}

func (t *Timeline) applyAhead(e *Entry) {
	if st, ok := t.ahead[e.Message.ID]; ok {
		e.Message.Status = e.Message.Status.Max(st)
		delete(t.ahead, e.Message.ID)
	}
}

func (t *Timeline) inFlight() bool {
	for _, e := range t.pending {
		if e.State == StatePending {
			return true
		}
	}
	return false
}

// flushEarly releases held messages once nothing is in flight to claim them.
func (t *Timeline) flushEarly() {
	if t.inFlight() {
		return
	}
	for id, m := range t.early {
		delete(t.early, id)
		t.merge(m)
	}
}
