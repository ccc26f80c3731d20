package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hravel/huddl/internal/store"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger, _ := zap.NewDevelopment()
	return New(Options{
		BaseURL:        srv.URL,
		Token:          "test-token",
		UserID:         "me",
		UserName:       "Me",
		RequestTimeout: 2 * time.Second,
	}, logger)
}

func TestListConversationsNormalizesCurrentShape(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Errorf("path = %q, want /conversations", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"id": "c1", "name": "Engineering", "kind": "broadcast",
			"lastMessage": "standup at 10", "lastMessageAt": "2026-03-01T09:00:00Z",
			"unreadCount": 2, "participantIds": ["u1","u2"]
		}]`))
	}))

	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	got := convs[0]
	if got.Name != "Engineering" || got.Kind != store.KindBroadcast || got.UnreadCount != 2 {
		t.Errorf("normalized = %+v", got)
	}
	if got.LastMessageAt != time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("lastMessageAt = %d", got.LastMessageAt)
	}
}

func TestListConversationsNormalizesLegacyShape(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Legacy backend: snake_case, unix seconds, "type" for kind.
		_, _ = w.Write([]byte(`[{
			"id": "c2", "chat_name": "People Ops", "type": "announcement",
			"last_message": "policy update", "last_message_at": 1767225600,
			"unread_count": 1, "participant_ids": ["u3"]
		}]`))
	}))

	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := convs[0]
	if got.Name != "People Ops" || got.Kind != store.KindBroadcast || got.UnreadCount != 1 {
		t.Errorf("normalized = %+v", got)
	}
	if got.LastMessageAt != 1767225600_000 {
		t.Errorf("lastMessageAt = %d, want millis from unix seconds", got.LastMessageAt)
	}
}

func TestNormalizationDefaults(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": "c3"}]`))
	}))

	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := convs[0]
	if got.Name != "Unknown Chat" {
		t.Errorf("name = %q, want Unknown Chat default", got.Name)
	}
	if got.Kind != store.KindDirect {
		t.Errorf("kind = %q, want direct default", got.Kind)
	}
	if got.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", got.UnreadCount)
	}
}

func TestListMessagesSetsAuthorFlagAndStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "m1", "conversationId": "c1", "senderId": "me", "senderName": "Me",
			 "body": "hi", "createdAt": "2026-03-01T09:00:00Z", "readAt": "2026-03-01T09:01:00Z"},
			{"id": "m2", "conversation_id": "c1", "sender_id": "u2", "sender_name": "Bea",
			 "msg": "hello", "created_at": 1767225601}
		]`))
	}))

	msgs, err := c.ListMessages(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !msgs[0].FromMe || msgs[0].Status != store.StatusRead {
		t.Errorf("own read message = %+v", msgs[0])
	}
	if msgs[1].FromMe || msgs[1].Body != "hello" || msgs[1].Status != store.StatusSent {
		t.Errorf("legacy message = %+v", msgs[1])
	}
}

func TestSendMessage(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/c1/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "m9", "senderId": "me", "body": "hi", "createdAt": "2026-03-01T09:00:00Z"}`))
	}))

	msg, err := c.SendMessage(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m9" || !msg.FromMe {
		t.Errorf("sent = %+v", msg)
	}
	if msg.ConversationID != "c1" {
		t.Errorf("conversation id = %q, want filled from request", msg.ConversationID)
	}
}

func TestStatusError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	_, err := c.ListConversations(context.Background())
	if err == nil {
		t.Fatal("expected error for 403")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusForbidden {
		t.Errorf("err = %v, want StatusError 403", err)
	}
}

func TestTypingSignals(t *testing.T) {
	var actions []string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Action string `json:"action"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			actions = append(actions, body.Action)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"user_id": "u2", "display_name": "Bea", "started_at": 1767225600}]`))
		}
	}))

	ctx := context.Background()
	if err := c.TypingStart(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := c.TypingStop(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	users, err := c.TypingUsers(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}

	if len(actions) != 2 || actions[0] != "start" || actions[1] != "stop" {
		t.Errorf("actions = %v", actions)
	}
	if len(users) != 1 || users[0].UserID != "u2" || users[0].ConversationID != "c1" {
		t.Errorf("typing users = %+v", users)
	}
}
