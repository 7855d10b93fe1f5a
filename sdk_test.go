package openim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

var testUpgrader = websocket.Upgrader{}

// newTestServer stands up a single httptest server multiplexing the
// websocket endpoint and every HTTP API endpoint the initial Connect call
// exercises, each answering with the minimum viable response so a fresh
// Client can complete login, handshake, and initial sync end to end.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"errCode":0}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	respond := func(data any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"errCode": 0, "errMsg": "", "data": data})
		}
	}

	mux.HandleFunc("/account/login", respond(map[string]any{
		"imToken": "tok-123", "chatToken": "chat-tok", "userID": "me",
	}))
	mux.HandleFunc("/conversation/get_all_conversations", respond(map[string]any{"conversations": []any{}}))
	mux.HandleFunc("/conversation/get_full_conversation_ids", respond(map[string]any{
		"version": 1, "versionID": "v1", "conversationIDs": []any{},
	}))
	mux.HandleFunc("/msg/get_conversations_has_read_and_max_seq", respond(map[string]any{"seqs": map[string]any{}}))
	mux.HandleFunc("/friend/get_full_friend_user_ids", respond(map[string]any{
		"version": 1, "versionID": "v1", "userIDs": []any{},
	}))
	mux.HandleFunc("/friend/get_friend_list", respond(map[string]any{"friendsInfo": []any{}}))
	mux.HandleFunc("/friend/get_black_list", respond(map[string]any{"blacks": []any{}}))
	mux.HandleFunc("/friend/get_friend_apply_list", respond(map[string]any{"friendRequests": []any{}}))
	mux.HandleFunc("/msg/mark_all_conversation_as_read", respond(nil))
	mux.HandleFunc("/msg/typing_status_update", respond(nil))
	mux.HandleFunc("/msg/delete_msg", respond(nil))
	mux.HandleFunc("/msg/delete_msgs", respond(nil))
	mux.HandleFunc("/msg/clear_conversation_msg", respond(nil))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LoginConnectAndSendTextMessage(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	c, err := New(NewConfig(
		WithDBPath(":memory:"),
		WithHTTPBaseURL(srv.URL),
		WithWSBaseURL(wsURL),
		WithOptimizeInterval(time.Hour),
	))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	loginResp, err := c.Login(context.Background(), "86", "13800000000", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loginResp.UserID != "me" || loginResp.IMToken != "tok-123" {
		t.Fatalf("unexpected login response: %+v", loginResp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, loginResp.UserID, loginResp.IMToken); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	msg, err := c.SendTextMessage(context.Background(), "single_me_them", "them", "", "hello")
	if err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}
	if msg.SendID != "me" {
		t.Fatalf("expected SendID 'me', got %q", msg.SendID)
	}

	// The initial sync found no server-side conversations, so the list
	// remains empty — sending a message does not itself materialize a
	// local_conversations row; that only happens on the receive path.
	convs, err := c.GetConversationListSplit(0, 10)
	if err != nil {
		t.Fatalf("GetConversationListSplit: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("expected no conversations yet, got %+v", convs)
	}
}

func TestClient_MarkAllConversationsAsReadAndSendTypingStatus(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	c, err := New(NewConfig(
		WithDBPath(":memory:"),
		WithHTTPBaseURL(srv.URL),
		WithWSBaseURL(wsURL),
	))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "me", "tok-123"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.store.UpsertConversation(&model.Conversation{ConversationID: "c1", UnreadCount: 5}); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if err := c.MarkAllConversationsAsRead(context.Background()); err != nil {
		t.Fatalf("MarkAllConversationsAsRead: %v", err)
	}
	total, err := c.store.TotalUnreadCount()
	if err != nil {
		t.Fatalf("total unread: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 unread after mark-all, got %d", total)
	}

	if err := c.SendTypingStatus(context.Background(), "them", "typing..."); err != nil {
		t.Fatalf("SendTypingStatus: %v", err)
	}
}

func TestClient_SearchLocalMessages(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	c, err := New(NewConfig(
		WithDBPath(":memory:"),
		WithHTTPBaseURL(srv.URL),
		WithWSBaseURL(wsURL),
	))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "me", "tok-123"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	msg, err := c.SendTextMessage(context.Background(), "single_me_them", "them", "", "a searchable greeting")
	if err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}

	results, err := c.SearchLocalMessages("single_me_them", "searchable", nil, 0, 0)
	if err != nil {
		t.Fatalf("SearchLocalMessages: %v", err)
	}
	if len(results) != 1 || results[0].ClientMsgID != msg.ClientMsgID {
		t.Fatalf("expected one matching result for %q, got %+v", msg.ClientMsgID, results)
	}

	none, err := c.SearchLocalMessages("single_me_them", "no-such-keyword", nil, 0, 0)
	if err != nil {
		t.Fatalf("SearchLocalMessages (miss): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no results, got %+v", none)
	}
}

func TestClient_DeleteMessageDeleteMessagesAndClearConversationMessages(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	c, err := New(NewConfig(
		WithDBPath(":memory:"),
		WithHTTPBaseURL(srv.URL),
		WithWSBaseURL(wsURL),
	))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "me", "tok-123"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	one, err := c.SendTextMessage(context.Background(), "single_me_them", "them", "", "delete me")
	if err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}
	if err := c.DeleteMessage(context.Background(), "single_me_them", one.ClientMsgID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	got, err := c.store.GetMessageByClientMsgID("single_me_them", one.ClientMsgID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected message gone after DeleteMessage, got %+v", got)
	}

	if err := c.store.InsertMessage("single_me_them", &model.Message{
		ClientMsgID: "seq-del-1", SendID: "them", ContentType: model.ContentText, Content: "x", Seq: 11,
	}); err != nil {
		t.Fatalf("seed seq message: %v", err)
	}
	if err := c.DeleteMessages(context.Background(), "single_me_them", []int64{11}); err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}
	afterBulkDelete, err := c.store.GetMessagesBySeq("single_me_them", []int64{11})
	if err != nil {
		t.Fatalf("get by seq after delete: %v", err)
	}
	if len(afterBulkDelete) != 0 {
		t.Fatalf("expected no messages with seq 11 after DeleteMessages, got %+v", afterBulkDelete)
	}

	if err := c.store.InsertMessage("single_me_them", &model.Message{
		ClientMsgID: "survivor", SendID: "them", ContentType: model.ContentText, Content: "y", Seq: 12,
	}); err != nil {
		t.Fatalf("seed survivor message: %v", err)
	}
	if err := c.ClearConversationMessages(context.Background(), []string{"single_me_them"}); err != nil {
		t.Fatalf("ClearConversationMessages: %v", err)
	}
	afterClear, err := c.store.GetMessagesBySeq("single_me_them", []int64{12})
	if err != nil {
		t.Fatalf("get by seq after clear: %v", err)
	}
	if len(afterClear) != 0 {
		t.Fatalf("expected no messages after ClearConversationMessages, got %+v", afterClear)
	}
}
