package docsign

import (
	"sort"
	"sync"
)

// EventType is the kind of change carried by an Event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Table names on the change feed.
const (
	TableDocuments     = "documents"
	TableNotifications = "notifications"
)

// Event is a change-feed record. Exactly one of Document or Notification is
// set, matching Table. Delete events only need the record's ID.
type Event struct {
	Type         EventType
	Table        string
	Document     *Document
	Notification *Notification
}

// MergeDocument decides which of two versions of the same document survives.
// The higher revision wins; on equal revisions the later UpdatedAt wins; on a
// full tie the incoming record wins. A signed record is never replaced by an
// unsigned one.
func MergeDocument(current, incoming *Document) *Document {
	if current == nil {
		return incoming
	}
	if incoming == nil {
		return current
	}
	if current.IsSigned() && !incoming.IsSigned() {
		return current
	}
	if incoming.IsSigned() && !current.IsSigned() {
		return incoming
	}
	switch {
	case incoming.Revision > current.Revision:
		return incoming
	case incoming.Revision < current.Revision:
		return current
	case current.UpdatedAt.After(incoming.UpdatedAt):
		return current
	default:
		return incoming
	}
}

// MergeNotification decides which of two versions of the same notification
// survives. Read state is sticky: once read, a notification stays read.
func MergeNotification(current, incoming *Notification) *Notification {
	if current == nil {
		return incoming
	}
	if incoming == nil {
		return current
	}
	winner := incoming
	if current.Revision > incoming.Revision {
		winner = current
	}
	if current.Read && !winner.Read {
		w := winner.Clone()
		w.Read = true
		return w
	}
	return winner
}

// Store is the in-memory reflection of persisted documents and
// notifications. Direct operations and change-feed callbacks both go through
// Apply, so they serialize on the same lock.
type Store struct {
	mu            sync.RWMutex
	documents     map[string]*Document
	notifications map[string]*Notification
	seq           map[string]uint64 // insertion order, for stable newest-first listing
	nextSeq       uint64
	currentID     string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		documents:     make(map[string]*Document),
		notifications: make(map[string]*Notification),
		seq:           make(map[string]uint64),
	}
}

func (s *Store) remember(id string) {
	if _, ok := s.seq[id]; !ok {
		s.nextSeq++
		s.seq[id] = s.nextSeq
	}
}

// Apply merges a single event into the store. It returns true if the
// store's state changed.
func (s *Store) Apply(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ev)
}

// Replace loads a full snapshot, merging each record with any existing one.
func (s *Store) Replace(docs []*Document, notes []*Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.applyLocked(Event{Type: EventUpdate, Table: TableDocuments, Document: d})
	}
	for _, n := range notes {
		s.applyLocked(Event{Type: EventUpdate, Table: TableNotifications, Notification: n})
	}
}

func (s *Store) applyLocked(ev Event) bool {
	switch ev.Table {
	case TableDocuments:
		if ev.Document == nil || ev.Document.ID == "" {
			return false
		}
		id := ev.Document.ID
		if ev.Type == EventDelete {
			if _, ok := s.documents[id]; !ok {
				return false
			}
			delete(s.documents, id)
			delete(s.seq, "d/"+id)
			if s.currentID == id {
				s.currentID = ""
			}
			return true
		}
		cur := s.documents[id]
		merged := MergeDocument(cur, ev.Document)
		if merged == cur {
			return false
		}
		s.documents[id] = merged.Clone()
		s.remember("d/" + id)
		return true

	case TableNotifications:
		if ev.Notification == nil || ev.Notification.ID == "" {
			return false
		}
		id := ev.Notification.ID
		if ev.Type == EventDelete {
			if _, ok := s.notifications[id]; !ok {
				return false
			}
			delete(s.notifications, id)
			delete(s.seq, "n/"+id)
			return true
		}
		cur := s.notifications[id]
		merged := MergeNotification(cur, ev.Notification)
		if merged == cur {
			return false
		}
		s.notifications[id] = merged.Clone()
		s.remember("n/" + id)
		return true
	}
	return false
}

// Document returns a copy of the document with the given id, or nil.
func (s *Store) Document(id string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documents[id].Clone()
}

// Documents returns copies of all documents, most recent first.
func (s *Store) Documents() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0, len(s.documents))
	for _, d := range s.documents {
		docs = append(docs, d.Clone())
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return s.seq["d/"+docs[i].ID] > s.seq["d/"+docs[j].ID]
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs
}

// Notifications returns copies of all notifications, most recent first.
func (s *Store) Notifications() []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make([]*Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		notes = append(notes, n.Clone())
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return s.seq["n/"+notes[i].ID] > s.seq["n/"+notes[j].ID]
		}
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	return notes
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// SetCurrent designates the current document. An unknown id clears it.
func (s *Store) SetCurrent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		s.currentID = ""
		return
	}
	s.currentID = id
}

// Current returns the current document, or nil if none is set.
func (s *Store) Current() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return nil
	}
	return s.documents[s.currentID].Clone()
}
