package app

import (
	"sync"
	"time"
)

// TypingTracker maps conversationID to the set of users currently typing.
// Advisory and lossy by design: never persisted, a missed stop self-heals
// on disconnect cleanup or via the idle timer.
type TypingTracker struct {
	mu     sync.Mutex
	typing map[string]map[string]*time.Timer
	idle   time.Duration
	onIdle func(conversationID, userID string)
}

// NewTypingTracker create a TypingTracker. idle <= 0 disables the timer;
// onIdle is invoked (outside the lock) when a typing entry expires.
func NewTypingTracker(idle time.Duration, onIdle func(conversationID, userID string)) *TypingTracker {
	return &TypingTracker{
		typing: make(map[string]map[string]*time.Timer),
		idle:   idle,
		onIdle: onIdle,
	}
}

// Start marks the user as typing and reports whether that was a state
// transition; a repeated start is a no-op apart from resetting the idle
// timer.
func (t *TypingTracker) Start(conversationID, userID string) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.typing[conversationID]
	if set == nil {
		set = make(map[string]*time.Timer)
		t.typing[conversationID] = set
	}

	if timer, ok := set[userID]; ok {
		if timer != nil {
			timer.Reset(t.idle)
		}
		return false
	}

	var timer *time.Timer
	if t.idle > 0 {
		timer = time.AfterFunc(t.idle, func() { t.expire(conversationID, userID) })
	}
	set[userID] = timer
	return true
}

// Stop clears the user's typing state and reports whether it was set.
func (t *TypingTracker) Stop(conversationID, userID string) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(conversationID, userID)
}

// PurgeUser clears the user from every conversation it was typing in and
// returns those conversation ids, so the caller can emit stop-typing
// events. Used on disconnect of the user's last connection.
func (t *TypingTracker) PurgeUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var purged []string
	for conversationID, set := range t.typing {
		if _, ok := set[userID]; ok {
			t.removeLocked(conversationID, userID)
			purged = append(purged, conversationID)
		}
	}
	return purged
}

// IsTyping reports whether the user is currently typing in the conversation.
func (t *TypingTracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[conversationID][userID]
	return ok
}

func (t *TypingTracker) expire(conversationID, userID string) {
	t.mu.Lock()
	changed := t.removeLocked(conversationID, userID)
	t.mu.Unlock()

	if changed && t.onIdle != nil {
		t.onIdle(conversationID, userID)
	}
}

func (t *TypingTracker) removeLocked(conversationID, userID string) bool {
	set := t.typing[conversationID]
	timer, ok := set[userID]
	if !ok {
		return false
	}
	if timer != nil {
		timer.Stop()
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}
