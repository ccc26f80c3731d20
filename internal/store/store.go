package store

import (
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store is the single source of truth for everything the UI renders:
// conversations, per-conversation message lists, typing sets and connection
// status. All mutation goes through its methods; readers get deep-copied
// snapshots. Notifications to subscribers are coalesced by the Scheduler.
type Store struct {
	mu sync.Mutex

	conversations map[string]*Conversation
	messages      map[string][]Message
	participants  []Participant
	typing        map[string]map[string]TypingUser

	active     string
	connection ConnectionState
	loading    bool
	lastError  string

	sched     Scheduler
	subs      map[int]func(Snapshot)
	nextSub   int
	pending   bool
	destroyed bool

	logger *zap.Logger
}

// Snapshot is a complete, self-contained copy of the store state. Subscribers
// must treat each snapshot as authoritative, never as a diff.
type Snapshot struct {
	Conversations      []Conversation // sorted by last activity, newest first
	Messages           map[string][]Message
	Participants       []Participant
	Typing             map[string][]TypingUser
	ActiveConversation string
	Connection         ConnectionState
	Loading            bool
	LastError          string
}

// New creates an empty store. The scheduler controls how mutation bursts are
// coalesced into subscriber notifications.
func New(sched Scheduler, logger *zap.Logger) *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		typing:        make(map[string]map[string]TypingUser),
		sched:         sched,
		subs:          make(map[int]func(Snapshot)),
		connection:    ConnOffline,
		logger:        logger,
	}
}

// AddOrUpdateMessage inserts the message in timestamp order if its identifier
// is new, or replaces the existing entry with the same identifier in place.
// A byte-identical message is a no-op and fires no notification.
func (s *Store) AddOrUpdateMessage(conversationID string, m Message) {
	m.ConversationID = conversationID
	s.mu.Lock()
	list := s.messages[conversationID]
	idx := -1
	for i := range list {
		if list[i].ID == m.ID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		if messagesEqual(list[idx], m) {
			s.mu.Unlock()
			return
		}
		list[idx] = m
	} else {
		list = append(list, m)
	}
	sortMessages(list)
	s.messages[conversationID] = list
	s.mu.Unlock()
	s.scheduleNotify()
}

// UpdateMessageStatus scans all conversations for the identifier and updates
// its delivery status. No-op if the message is not found.
func (s *Store) UpdateMessageStatus(messageID string, status MessageStatus) {
	s.mu.Lock()
	changed := false
	for _, list := range s.messages {
		for i := range list {
			if list[i].ID == messageID && list[i].Status != status {
				list[i].Status = status
				changed = true
			}
		}
	}
	s.mu.Unlock()
	if changed {
		s.scheduleNotify()
	}
}

// RemoveMessage deletes the message with the given identifier from the
// conversation. No-op if absent.
func (s *Store) RemoveMessage(conversationID, messageID string) {
	s.mu.Lock()
	list := s.messages[conversationID]
	changed := false
	for i := range list {
		if list[i].ID == messageID {
			s.messages[conversationID] = append(list[:i], list[i+1:]...)
			changed = true
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.scheduleNotify()
	}
}

// SetMessages bulk-replaces the conversation's message list, re-sorted by
// timestamp. Used when loading history.
func (s *Store) SetMessages(conversationID string, list []Message) {
	cp := make([]Message, len(list))
	copy(cp, list)
	for i := range cp {
		cp[i].ConversationID = conversationID
	}
	sortMessages(cp)
	s.mu.Lock()
	s.messages[conversationID] = cp
	s.mu.Unlock()
	s.scheduleNotify()
}

// Messages returns a copy of the conversation's message list.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages[conversationID])
}

// UpsertConversation inserts or replaces a conversation record.
func (s *Store) UpsertConversation(c Conversation) {
	s.mu.Lock()
	cp := c
	cp.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	s.conversations[c.ID] = &cp
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetConversations bulk-replaces the conversation list.
func (s *Store) SetConversations(list []Conversation) {
	s.mu.Lock()
	s.conversations = make(map[string]*Conversation, len(list))
	for _, c := range list {
		cp := c
		cp.ParticipantIDs = slices.Clone(c.ParticipantIDs)
		s.conversations[c.ID] = &cp
	}
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetConversationPreview updates the last-message preview and activity time,
// creating a skeleton conversation if it was never fetched. Older previews
// never overwrite newer ones.
func (s *Store) SetConversationPreview(conversationID, preview string, at int64) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		c = &Conversation{ID: conversationID, Name: "Unknown Chat", Kind: KindDirect}
		s.conversations[conversationID] = c
	}
	if at < c.LastMessageAt {
		s.mu.Unlock()
		return
	}
	c.LastMessagePreview = preview
	c.LastMessageAt = at
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetUnreadCount sets the unread counter, clamped to zero.
func (s *Store) SetUnreadCount(conversationID string, count int) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok || c.UnreadCount == count {
		s.mu.Unlock()
		return
	}
	c.UnreadCount = count
	s.mu.Unlock()
	s.scheduleNotify()
}

// IncrementUnread bumps the unread counter by one.
func (s *Store) IncrementUnread(conversationID string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}
	c.UnreadCount++
	s.mu.Unlock()
	s.scheduleNotify()
}

// DecrementUnread lowers the unread counter by one, never below zero.
func (s *Store) DecrementUnread(conversationID string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok || c.UnreadCount == 0 {
		s.mu.Unlock()
		return
	}
	c.UnreadCount--
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetActiveConversation records which conversation the viewer is looking at.
// Opening a conversation zeroes its unread count (read-on-view).
func (s *Store) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	changed := s.active != conversationID
	s.active = conversationID
	if c, ok := s.conversations[conversationID]; ok && c.UnreadCount != 0 {
		c.UnreadCount = 0
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.scheduleNotify()
	}
}

// ActiveConversation returns the currently open conversation id, or "".
func (s *Store) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetParticipants replaces the participant directory.
func (s *Store) SetParticipants(list []Participant) {
	s.mu.Lock()
	s.participants = slices.Clone(list)
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetConnectionStatus records the connection state. Idempotent.
func (s *Store) SetConnectionStatus(state ConnectionState) {
	s.mu.Lock()
	if s.connection == state {
		s.mu.Unlock()
		return
	}
	s.connection = state
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetLoading records whether a foreground fetch is in progress. Idempotent.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	if s.loading == v {
		s.mu.Unlock()
		return
	}
	s.loading = v
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetError records the most recent error message for UI display. Pass "" to
// clear. Idempotent.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	if s.lastError == msg {
		s.mu.Unlock()
		return
	}
	s.lastError = msg
	s.mu.Unlock()
	s.scheduleNotify()
}

// AddTypingUser adds a participant to the conversation's typing set.
func (s *Store) AddTypingUser(t TypingUser) {
	s.mu.Lock()
	set, ok := s.typing[t.ConversationID]
	if !ok {
		set = make(map[string]TypingUser)
		s.typing[t.ConversationID] = set
	}
	set[t.UserID] = t
	s.mu.Unlock()
	s.scheduleNotify()
}

// RemoveTypingUser removes a participant from the conversation's typing set.
// Removing the last entry deletes the set entirely.
func (s *Store) RemoveTypingUser(conversationID, userID string) {
	s.mu.Lock()
	set, ok := s.typing[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok := set[userID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(s.typing, conversationID)
	}
	s.mu.Unlock()
	s.scheduleNotify()
}

// SetTypingUsers replaces the conversation's typing set wholesale, used when
// refreshing from the backend on conversation open.
func (s *Store) SetTypingUsers(conversationID string, users []TypingUser) {
	s.mu.Lock()
	if len(users) == 0 {
		delete(s.typing, conversationID)
	} else {
		set := make(map[string]TypingUser, len(users))
		for _, u := range users {
			u.ConversationID = conversationID
			set[u.UserID] = u
		}
		s.typing[conversationID] = set
	}
	s.mu.Unlock()
	s.scheduleNotify()
}

// Subscribe registers a listener that receives a full snapshot after each
// committed batch of changes. Returns an unsubscribe function.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Flush delivers any pending notification immediately. Test seam; also used
// during teardown so subscribers see the final state.
func (s *Store) Flush() {
	s.flush()
}

// Destroy tears the store down: the scheduler is stopped and subscribers are
// dropped. Later mutations still write to the maps but are never observable:
// no flush runs again and subscribers added afterwards never fire.
func (s *Store) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.subs = make(map[int]func(Snapshot))
	s.mu.Unlock()
	s.sched.Stop()
	s.logger.Info("store destroyed")
}

func (s *Store) scheduleNotify() {
	s.mu.Lock()
	if s.destroyed || s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.mu.Unlock()
	s.sched.Schedule(s.flush)
}

func (s *Store) flush() {
	s.mu.Lock()
	s.pending = false
	if s.destroyed || len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Conversations:      make([]Conversation, 0, len(s.conversations)),
		Messages:           make(map[string][]Message, len(s.messages)),
		Participants:       slices.Clone(s.participants),
		Typing:             make(map[string][]TypingUser, len(s.typing)),
		ActiveConversation: s.active,
		Connection:         s.connection,
		Loading:            s.loading,
		LastError:          s.lastError,
	}
	for _, c := range s.conversations {
		cp := *c
		cp.ParticipantIDs = slices.Clone(c.ParticipantIDs)
		snap.Conversations = append(snap.Conversations, cp)
	}
	sort.SliceStable(snap.Conversations, func(i, j int) bool {
		return snap.Conversations[i].LastMessageAt > snap.Conversations[j].LastMessageAt
	})
	for id, list := range s.messages {
		snap.Messages[id] = slices.Clone(list)
	}
	for id, set := range s.typing {
		users := make([]TypingUser, 0, len(set))
		for _, u := range set {
			users = append(users, u)
		}
		sort.SliceStable(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
		snap.Typing[id] = users
	}
	return snap
}

func sortMessages(list []Message) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
}

func messagesEqual(a, b Message) bool {
	return a.ID == b.ID &&
		a.ConversationID == b.ConversationID &&
		a.SenderID == b.SenderID &&
		a.SenderName == b.SenderName &&
		a.Body == b.Body &&
		a.Status == b.Status &&
		a.FromMe == b.FromMe &&
		a.Timestamp == b.Timestamp
}
