package store

import (
	"fmt"
	"sync"
	"time"

	"staff-sync/internal/hub"
	"staff-sync/internal/models"
	"staff-sync/internal/util"
)

// dedupeWindow is the coarse timestamp bucket used for the content-based
// idempotency key when two delivery paths describe the same occurrence.
const dedupeWindow = time.Minute

const maxDedupeKeys = 256

// Notifications owns the staff notification collection. The unread counter
// is updated atomically with every mutation so it always equals the number
// of held notifications with IsRead == false.
type Notifications struct {
	mu sync.Mutex

	items       []models.StaffNotification
	unread      int
	connState   string
	connErr     string
	seenIDs     map[string]struct{}
	contentKeys map[string]struct{}
	keyOrder    []string
}

func NewNotifications() *Notifications {
	return &Notifications{
		connState:   hub.StateDisconnected,
		seenIDs:     make(map[string]struct{}),
		contentKeys: make(map[string]struct{}),
	}
}

// contentKey derives an idempotency key for deliveries that arrive without a
// stable id: category + referenced table + coarse timestamp bucket.
func contentKey(n models.StaffNotification) string {
	bucket := n.Timestamp.Truncate(dedupeWindow).Unix()
	return fmt.Sprintf("%s|%d|%d", n.Type, n.TableNumber, bucket)
}

// Add inserts a notification at the head of the collection, newest first.
// Duplicate deliveries (same id, or same content key within the dedupe
// window) are dropped; Add reports whether the notification was accepted.
func (s *Notifications) Add(n models.StaffNotification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID != "" {
		if _, dup := s.seenIDs[n.ID]; dup {
			util.NotificationsDedupedTotal.Inc()
			return false
		}
	}
	ck := contentKey(n)
	if _, dup := s.contentKeys[ck]; dup {
		util.NotificationsDedupedTotal.Inc()
		return false
	}

	s.items = append([]models.StaffNotification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
	if n.ID != "" {
		s.seenIDs[n.ID] = struct{}{}
	}
	s.contentKeys[ck] = struct{}{}
	s.keyOrder = append(s.keyOrder, ck)
	if len(s.keyOrder) > maxDedupeKeys {
		delete(s.contentKeys, s.keyOrder[0])
		s.keyOrder = s.keyOrder[1:]
	}
	util.NotificationsAddedTotal.WithLabelValues(n.Type).Inc()
	return true
}

// SetAll replaces the collection wholesale, recomputing the unread count
// and rebuilding the dedupe memory from the new items.
func (s *Notifications) SetAll(items []models.StaffNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]models.StaffNotification, len(items))
	copy(s.items, items)
	s.unread = 0
	s.seenIDs = make(map[string]struct{}, len(items))
	s.contentKeys = make(map[string]struct{}, len(items))
	s.keyOrder = nil
	for _, n := range items {
		if !n.IsRead {
			s.unread++
		}
		if n.ID != "" {
			s.seenIDs[n.ID] = struct{}{}
		}
		ck := contentKey(n)
		if _, held := s.contentKeys[ck]; !held {
			s.contentKeys[ck] = struct{}{}
			s.keyOrder = append(s.keyOrder, ck)
		}
	}
}

// MarkRead marks one notification read; reports whether anything changed.
func (s *Notifications) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].IsRead {
				s.items[i].IsRead = true
				s.unread--
			}
			return true
		}
	}
	return false
}

// MarkAllRead marks every held notification read.
func (s *Notifications) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.unread = 0
}

// Remove deletes a notification by id, adjusting the unread counter when
// the removed notification was unread.
func (s *Notifications) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].IsRead {
				s.unread--
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.seenIDs, id)
			return true
		}
	}
	return false
}

// Clear empties the collection and forgets the dedupe memory, so a fresh
// occurrence arriving after the user cleared the list is accepted.
func (s *Notifications) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.unread = 0
	s.seenIDs = make(map[string]struct{})
	s.contentKeys = make(map[string]struct{})
	s.keyOrder = nil
}

// List returns a copy of the collection, newest first.
func (s *Notifications) List() []models.StaffNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.StaffNotification, len(s.items))
	copy(out, s.items)
	return out
}

// UnreadCount returns the running unread counter.
func (s *Notifications) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// CountByType returns how many held notifications match the given type.
func (s *Notifications) CountByType(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.Type == typ {
			n++
		}
	}
	return n
}

// SetConnectionState records the hub connection state for the UI.
func (s *Notifications) SetConnectionState(state, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connState = state
	s.connErr = errMsg
}

// ConnectionState returns the recorded hub state and last connect error.
func (s *Notifications) ConnectionState() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState, s.connErr
}
