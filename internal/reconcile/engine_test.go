package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/store"
	"go.uber.org/zap"
)

func testEngine(t *testing.T) (*Engine, *store.Store, *bus.Bus) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	st := store.New(store.SyncScheduler{}, logger)
	t.Cleanup(st.Destroy)
	b := bus.New()
	e := NewEngine(st, b, Config{SelfID: "me", SelfName: "Me"}, logger)
	return e, st, b
}

func TestOptimisticLifecycle(t *testing.T) {
	e, st, _ := testEngine(t)

	tempID := e.AddOptimistic("c1", "Hello")

	msgs := st.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 optimistic", len(msgs))
	}
	if msgs[0].ID != tempID || msgs[0].Status != store.StatusSending || !msgs[0].FromMe {
		t.Errorf("optimistic = %+v", msgs[0])
	}

	e.Confirm(tempID, store.Message{ID: "m1", ConversationID: "c1", SenderID: "me", Body: "Hello", Timestamp: msgs[0].Timestamp})

	msgs = st.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after confirm, want 1", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Status != store.StatusSent {
		t.Errorf("confirmed = %+v", msgs[0])
	}
	for _, m := range msgs {
		if m.ID == tempID {
			t.Error("temp id still present after confirm")
		}
	}
}

func TestFailLeavesRetryableMessage(t *testing.T) {
	e, st, _ := testEngine(t)

	tempID := e.AddOptimistic("c1", "will fail")
	e.Fail(tempID, errors.New("network down"))

	msgs := st.Messages("c1")
	if msgs[0].Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", msgs[0].Status)
	}
	if got := e.Attempts(tempID); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestRetryReentersPipeline(t *testing.T) {
	e, st, _ := testEngine(t)

	tempID := e.AddOptimistic("c1", "retry me")
	e.Fail(tempID, errors.New("timeout"))

	conv, body, ok := e.Retry(tempID)
	if !ok || conv != "c1" || body != "retry me" {
		t.Fatalf("Retry = (%q, %q, %v)", conv, body, ok)
	}
	if got := st.Messages("c1")[0].Status; got != store.StatusSending {
		t.Errorf("status after retry = %q, want sending", got)
	}

	if _, _, ok := e.Retry("tmp-unknown"); ok {
		t.Error("Retry of unknown temp id should report not ok")
	}
}

func TestIngestConfirmsBroadcastEcho(t *testing.T) {
	e, st, _ := testEngine(t)

	tempID := e.AddOptimistic("c1", "Hello")
	sent := st.Messages("c1")[0].Timestamp

	// Server echo arrives over the broadcast channel before the direct send
	// response; same sender, body, and a timestamp inside the window.
	e.Ingest(store.Message{
		ID: "m1", ConversationID: "c1", SenderID: "me", SenderName: "Me",
		Body: "Hello", Status: store.StatusSent, Timestamp: sent + 1500,
	})

	msgs := st.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (echo must confirm, not duplicate)", len(msgs))
	}
	if msgs[0].ID != "m1" {
		t.Errorf("id = %q, want server id m1", msgs[0].ID)
	}
	_ = tempID
}

func TestIngestAbsorbsDuplicateWithinWindow(t *testing.T) {
	e, st, _ := testEngine(t)

	e.Ingest(store.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Body: "hey", Timestamp: 10_000})
	e.Ingest(store.Message{ID: "m1-dup", ConversationID: "c1", SenderID: "u2", Body: "hey", Timestamp: 12_000})

	if got := len(st.Messages("c1")); got != 1 {
		t.Errorf("got %d messages, want 1 (duplicate inside window absorbed)", got)
	}
}

func TestIngestKeepsDistinctMessagesOutsideWindow(t *testing.T) {
	e, st, _ := testEngine(t)

	e.Ingest(store.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Body: "hey", Timestamp: 10_000})
	e.Ingest(store.Message{ID: "m2", ConversationID: "c1", SenderID: "u2", Body: "hey", Timestamp: 20_000})

	if got := len(st.Messages("c1")); got != 2 {
		t.Errorf("got %d messages, want 2 (outside window stays distinct)", got)
	}
}

func TestIngestUnmatchedConfirmationAppends(t *testing.T) {
	e, st, _ := testEngine(t)

	// A confirmed message with no optimistic counterpart is appended, never
	// dropped.
	e.Ingest(store.Message{ID: "m1", ConversationID: "c1", SenderID: "me", Body: "from other device", Timestamp: 10_000})

	if got := len(st.Messages("c1")); got != 1 {
		t.Errorf("got %d messages, want 1", got)
	}
}

func TestIngestIncrementsUnreadForInactiveConversation(t *testing.T) {
	e, st, _ := testEngine(t)
	st.UpsertConversation(store.Conversation{ID: "c1", Name: "General"})
	st.UpsertConversation(store.Conversation{ID: "c2", Name: "Random"})
	st.SetActiveConversation("c2")

	e.Ingest(store.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Body: "ping", Timestamp: 10_000})
	e.Ingest(store.Message{ID: "m2", ConversationID: "c2", SenderID: "u2", Body: "pong", Timestamp: 11_000})

	snap := st.Snapshot()
	for _, c := range snap.Conversations {
		switch c.ID {
		case "c1":
			if c.UnreadCount != 1 {
				t.Errorf("c1 unread = %d, want 1", c.UnreadCount)
			}
		case "c2":
			if c.UnreadCount != 0 {
				t.Errorf("c2 unread = %d, want 0 (active conversation)", c.UnreadCount)
			}
		}
	}
}

func TestEngineIngestsFromBus(t *testing.T) {
	e, st, b := testEngine(t)
	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{
		Topic:     bus.TopicMessage,
		Timestamp: time.Now(),
		Payload:   store.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Body: "hi", Timestamp: 10_000},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(st.Messages("c1")) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for bus-driven ingestion")
}
