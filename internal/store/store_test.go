package store

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

// testStore uses a synchronous scheduler so every mutation notifies
// immediately; tests never depend on the debounce timer.
func testStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	s := New(SyncScheduler{}, logger)
	t.Cleanup(s.Destroy)
	return s
}

func TestMessagesSortedByTimestamp(t *testing.T) {
	s := testStore(t)

	// Insert out of order.
	s.AddOrUpdateMessage("c1", Message{ID: "m3", Body: "three", Timestamp: 3000})
	s.AddOrUpdateMessage("c1", Message{ID: "m1", Body: "one", Timestamp: 1000})
	s.AddOrUpdateMessage("c1", Message{ID: "m2", Body: "two", Timestamp: 2000})

	msgs := s.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

func TestAddOrUpdateReplacesInPlace(t *testing.T) {
	s := testStore(t)

	s.AddOrUpdateMessage("c1", Message{ID: "m1", Body: "hello", Status: StatusSending, Timestamp: 1000})
	s.AddOrUpdateMessage("c1", Message{ID: "m1", Body: "hello", Status: StatusSent, Timestamp: 1000})

	msgs := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (replace, not duplicate)", len(msgs))
	}
	if msgs[0].Status != StatusSent {
		t.Errorf("status = %q, want sent", msgs[0].Status)
	}
}

func TestIdenticalMessageFiresNoNotification(t *testing.T) {
	s := testStore(t)

	m := Message{ID: "m1", Body: "hello", Status: StatusSent, Timestamp: 1000}
	s.AddOrUpdateMessage("c1", m)

	var notified int
	unsub := s.Subscribe(func(Snapshot) { notified++ })
	defer unsub()

	s.AddOrUpdateMessage("c1", m)
	if notified != 0 {
		t.Errorf("got %d notifications for identical message, want 0", notified)
	}
}

func TestUpdateMessageStatusUnknownIDIsNoop(t *testing.T) {
	s := testStore(t)
	s.AddOrUpdateMessage("c1", Message{ID: "m1", Status: StatusSent, Timestamp: 1000})

	s.UpdateMessageStatus("missing", StatusRead)

	if got := s.Messages("c1")[0].Status; got != StatusSent {
		t.Errorf("status = %q, want sent (unrelated message untouched)", got)
	}
}

func TestUnreadClampedToZero(t *testing.T) {
	s := testStore(t)
	s.UpsertConversation(Conversation{ID: "c1", Name: "General"})

	s.SetUnreadCount("c1", -5)
	if got := s.Snapshot().Conversations[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 after negative set", got)
	}

	s.DecrementUnread("c1")
	s.DecrementUnread("c1")
	if got := s.Snapshot().Conversations[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 (never negative)", got)
	}

	s.IncrementUnread("c1")
	s.IncrementUnread("c1")
	s.DecrementUnread("c1")
	s.DecrementUnread("c1")
	if got := s.Snapshot().Conversations[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 after balanced inc/dec", got)
	}
}

func TestSetActiveConversationZeroesUnread(t *testing.T) {
	s := testStore(t)
	s.UpsertConversation(Conversation{ID: "c1", Name: "General"})
	s.SetUnreadCount("c1", 5)

	s.SetActiveConversation("c1")

	snap := s.Snapshot()
	if snap.ActiveConversation != "c1" {
		t.Errorf("active = %q, want c1", snap.ActiveConversation)
	}
	if got := snap.Conversations[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 after opening", got)
	}
}

func TestIdempotentSettersFireNoNotification(t *testing.T) {
	s := testStore(t)
	s.SetConnectionStatus(ConnOnline)
	s.SetLoading(true)
	s.SetError("boom")

	var notified int
	unsub := s.Subscribe(func(Snapshot) { notified++ })
	defer unsub()

	s.SetConnectionStatus(ConnOnline)
	s.SetLoading(true)
	s.SetError("boom")

	if notified != 0 {
		t.Errorf("got %d notifications for unchanged values, want 0", notified)
	}
}

func TestTypingSetRemovalDeletesEmptySet(t *testing.T) {
	s := testStore(t)

	s.AddTypingUser(TypingUser{ConversationID: "c1", UserID: "u1", DisplayName: "Ana"})
	s.AddTypingUser(TypingUser{ConversationID: "c1", UserID: "u2", DisplayName: "Bea"})
	s.RemoveTypingUser("c1", "u1")

	if got := len(s.Snapshot().Typing["c1"]); got != 1 {
		t.Fatalf("got %d typing users, want 1", got)
	}

	s.RemoveTypingUser("c1", "u2")
	if _, ok := s.Snapshot().Typing["c1"]; ok {
		t.Error("empty typing set should be deleted, not left empty")
	}
}

func TestRemoveTypingUserUnknownIsNoop(t *testing.T) {
	s := testStore(t)

	var notified int
	unsub := s.Subscribe(func(Snapshot) { notified++ })
	defer unsub()

	s.RemoveTypingUser("c1", "nobody")
	if notified != 0 {
		t.Errorf("got %d notifications, want 0", notified)
	}
}

func TestSubscribeReceivesFullSnapshot(t *testing.T) {
	s := testStore(t)

	var last Snapshot
	unsub := s.Subscribe(func(snap Snapshot) { last = snap })
	defer unsub()

	s.UpsertConversation(Conversation{ID: "c1", Name: "General"})
	s.AddOrUpdateMessage("c1", Message{ID: "m1", Body: "hi", Timestamp: 1000})

	if len(last.Conversations) != 1 || len(last.Messages["c1"]) != 1 {
		t.Errorf("snapshot incomplete: %+v", last)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := testStore(t)

	var notified int
	unsub := s.Subscribe(func(Snapshot) { notified++ })
	unsub()

	s.SetLoading(true)
	if notified != 0 {
		t.Errorf("got %d notifications after unsubscribe, want 0", notified)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := testStore(t)
	s.AddOrUpdateMessage("c1", Message{ID: "m1", Body: "hi", Timestamp: 1000})

	snap := s.Snapshot()
	snap.Messages["c1"][0].Body = "mutated"

	if got := s.Messages("c1")[0].Body; got != "hi" {
		t.Errorf("store body = %q; snapshot mutation leaked into store", got)
	}
}

func TestConversationsSortedByActivity(t *testing.T) {
	s := testStore(t)
	s.SetConversations([]Conversation{
		{ID: "old", LastMessageAt: 1000},
		{ID: "new", LastMessageAt: 3000},
		{ID: "mid", LastMessageAt: 2000},
	})

	snap := s.Snapshot()
	for i, want := range []string{"new", "mid", "old"} {
		if snap.Conversations[i].ID != want {
			t.Errorf("conversations[%d].ID = %q, want %q", i, snap.Conversations[i].ID, want)
		}
	}
}

func TestSetConversationPreviewKeepsNewest(t *testing.T) {
	s := testStore(t)
	s.SetConversationPreview("c1", "newer", 2000)
	s.SetConversationPreview("c1", "older", 1000)

	c := s.Snapshot().Conversations[0]
	if c.LastMessagePreview != "newer" || c.LastMessageAt != 2000 {
		t.Errorf("preview = %q at %d, want newer at 2000", c.LastMessagePreview, c.LastMessageAt)
	}
	if c.Name != "Unknown Chat" {
		t.Errorf("skeleton name = %q, want Unknown Chat", c.Name)
	}
}

func TestTimerSchedulerCoalesces(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := New(NewTimerScheduler(20*time.Millisecond), logger)
	defer s.Destroy()

	notify := make(chan Snapshot, 16)
	unsub := s.Subscribe(func(snap Snapshot) { notify <- snap })
	defer unsub()

	// A burst of mutations inside the window must produce one notification
	// carrying all of them.
	s.UpsertConversation(Conversation{ID: "c1"})
	s.AddOrUpdateMessage("c1", Message{ID: "m1", Timestamp: 1000})
	s.AddOrUpdateMessage("c1", Message{ID: "m2", Timestamp: 2000})
	s.SetLoading(true)

	select {
	case snap := <-notify:
		if len(snap.Messages["c1"]) != 2 || !snap.Loading {
			t.Errorf("coalesced snapshot missing mutations: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced notification")
	}

	select {
	case <-notify:
		t.Error("burst produced more than one notification")
	case <-time.After(100 * time.Millisecond):
		// Expected: single flush.
	}
}

func TestDestroyedStoreIgnoresMutations(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := New(SyncScheduler{}, logger)

	var notified int
	s.Subscribe(func(Snapshot) { notified++ })
	s.Destroy()

	s.SetLoading(true)
	if notified != 0 {
		t.Errorf("got %d notifications after Destroy, want 0", notified)
	}

	// A late subscriber never fires either, even through an explicit flush.
	var late int
	s.Subscribe(func(Snapshot) { late++ })
	s.SetError("boom")
	s.Flush()
	if late != 0 {
		t.Errorf("late subscriber fired %d times after Destroy, want 0", late)
	}
}
