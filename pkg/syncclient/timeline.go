package syncclient

import (
	"sort"
	"sync"

	"campaignhub/internal/domain/entity"
)

// Entry is one row of a room's local view.
type Entry struct {
	entity.Message

	// Provisional entries were created locally and have not been matched to
	// an authoritative message yet. Their ID is empty.
	Provisional bool  `json:"provisional"`
	Unsent      bool  `json:"unsent"`
	SendError   error `json:"-"`
}

// Timeline is the ordered local cache of one room. It never trusts itself over
// the server: authoritative messages always win over provisional ones.
type Timeline struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
}

func NewTimeline() *Timeline {
	return &Timeline{byID: make(map[string]*Entry)}
}

// Load replaces authoritative history while keeping provisional entries that
// have not been reconciled.
func (t *Timeline) Load(messages []entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var provisional []*Entry
	for _, e := range t.entries {
		if e.Provisional {
			provisional = append(provisional, e)
		}
	}
	t.entries = t.entries[:0]
	t.byID = make(map[string]*Entry, len(messages))
	for i := range messages {
		e := &Entry{Message: messages[i]}
		if _, dup := t.byID[e.ID]; dup {
			continue
		}
		t.byID[e.ID] = e
		t.entries = append(t.entries, e)
	}
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Before(&t.entries[j].Message)
	})
	for _, e := range provisional {
		if !t.committed(e.ClientToken) {
			t.entries = append(t.entries, e)
		}
	}
}

// AddProvisional appends a locally originated message. msg.ClientToken must be set.
func (t *Timeline) AddProvisional(msg entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg.ID = ""
	t.entries = append(t.entries, &Entry{Message: msg, Provisional: true})
}

// Insert reconciles an authoritative message into the view and reports
// whether anything changed. A known id is ignored. A message carrying the
// token of a provisional entry replaces that entry where it stands.
func (t *Timeline) Insert(msg entity.Message, localActor string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.ID == "" {
		return false
	}
	if _, ok := t.byID[msg.ID]; ok {
		return false
	}

	if msg.SenderID == localActor {
		if e := t.provisionalFor(msg.ClientToken, msg.Body); e != nil {
			e.Message = msg
			e.Provisional = false
			e.Unsent = false
			e.SendError = nil
			t.byID[msg.ID] = e
			return true
		}
	}

	e := &Entry{Message: msg}
	t.byID[msg.ID] = e
	t.insertSorted(e)
	return true
}

// Update replaces the mutable parts of a known message, for example the offer
// status. Unknown ids are inserted.
func (t *Timeline) Update(msg entity.Message, localActor string) bool {
	t.mu.Lock()
	e, ok := t.byID[msg.ID]
	if ok {
		e.Message = msg
	}
	t.mu.Unlock()
	if ok {
		return true
	}
	return t.Insert(msg, localActor)
}

// provisionalFor finds the provisional entry a returning message belongs to.
// The correlation token is authoritative; a body match is only used for
// echoes from servers that drop the token.
func (t *Timeline) provisionalFor(token, body string) *Entry {
	if token != "" {
		for _, e := range t.entries {
			if e.Provisional && e.ClientToken == token {
				return e
			}
		}
		return nil
	}
	for _, e := range t.entries {
		if e.Provisional && e.Body == body {
			return e
		}
	}
	return nil
}

// committed expects the lock held. It reports whether an authoritative entry
// already carries token.
func (t *Timeline) committed(token string) bool {
	for _, e := range t.entries {
		if !e.Provisional && token != "" && e.ClientToken == token {
			return true
		}
	}
	return false
}

func (t *Timeline) insertSorted(e *Entry) {
	// Provisional entries stay at the tail until they are matched.
	end := len(t.entries)
	for end > 0 && t.entries[end-1].Provisional {
		end--
	}
	i := sort.Search(end, func(i int) bool {
		return e.Before(&t.entries[i].Message)
	})
	t.entries = append(t.entries, nil)
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
}

// MarkUnsent flags the provisional entry with token as failed.
func (t *Timeline) MarkUnsent(token string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Provisional && e.ClientToken == token {
			e.Unsent = true
			e.SendError = err
			return true
		}
	}
	return false
}

// Resend clears the unsent flag and returns a copy of the entry for retry.
func (t *Timeline) Resend(token string) (entity.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Provisional && e.Unsent && e.ClientToken == token {
			e.Unsent = false
			e.SendError = nil
			return e.Message, true
		}
	}
	return entity.Message{}, false
}

// MarkRead sets is_read on every known id and reports whether any flipped.
func (t *Timeline) MarkRead(ids []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, id := range ids {
		if e, ok := t.byID[id]; ok && !e.IsRead {
			e.IsRead = true
			changed = true
		}
	}
	return changed
}

// UnreadFrom lists unread authoritative messages not sent by actor.
func (t *Timeline) UnreadFrom(actor string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for _, e := range t.entries {
		if !e.Provisional && !e.IsRead && e.SenderID != actor {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Entries returns a snapshot in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
