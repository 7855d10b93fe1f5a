package dispatcher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xiaohei189/openim-sdk-core/internal/conversation"
	"github.com/xiaohei189/openim-sdk-core/internal/dedup"
	"github.com/xiaohei189/openim-sdk-core/internal/friend"
	"github.com/xiaohei189/openim-sdk-core/internal/httpclient"
	"github.com/xiaohei189/openim-sdk-core/internal/listener"
	"github.com/xiaohei189/openim-sdk-core/internal/message"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/store"
	"github.com/xiaohei189/openim-sdk-core/internal/transport"
	"go.uber.org/goleak"
)

// TestMain verifies that no goroutine the dispatcher detaches (spec §4.2) is
// still running once the package's tests have finished.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingAdvancedMsgListener captures every AdvancedMsgListener call on a
// buffered channel so tests can await the dispatcher's async goroutines
// without sleeping.
type recordingAdvancedMsgListener struct {
	listener.NoOpAdvancedMsgListener
	calls chan string
}

func newRecordingListener() *recordingAdvancedMsgListener {
	return &recordingAdvancedMsgListener{calls: make(chan string, 16)}
}

func (l *recordingAdvancedMsgListener) OnRecvNewMessage(msgJSON string) {
	l.calls <- "new:" + msgJSON
}
func (l *recordingAdvancedMsgListener) OnNewRecvMessageRevoked(eventJSON string) {
	l.calls <- "revoke:" + eventJSON
}
func (l *recordingAdvancedMsgListener) OnRecvC2CReadReceipt(receiptJSON string) {
	l.calls <- "receipt:" + receiptJSON
}
func (l *recordingAdvancedMsgListener) OnRecvTypingStatus(typingJSON string) {
	l.calls <- "typing:" + typingJSON
}
func (l *recordingAdvancedMsgListener) OnKickedOffline() {
	l.calls <- "kicked"
}
func (l *recordingAdvancedMsgListener) OnConnectionStatusChanged(connected bool) {
	if connected {
		l.calls <- "connected"
	} else {
		l.calls <- "disconnected"
	}
}

func (l *recordingAdvancedMsgListener) awaitPrefix(t *testing.T, prefix string) string {
	t.Helper()
	select {
	case got := <-l.calls:
		if len(got) < len(prefix) || got[:len(prefix)] != prefix {
			t.Fatalf("expected call with prefix %q, got %q", prefix, got)
		}
		return got
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for call with prefix %q", prefix)
		return ""
	}
}

func (l *recordingAdvancedMsgListener) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-l.calls:
		t.Fatalf("expected no further calls, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

// newTestDispatcher wires a Dispatcher against an in-memory store and a fake
// HTTP API that answers every endpoint with an empty success envelope, so
// the syncers' background calls never block or fail noisily.
func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingAdvancedMsgListener) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errCode": 0,
			"errMsg":  "",
			"data":    map[string]any{},
		})
	}))
	t.Cleanup(srv.Close)

	api := httpclient.New(srv.URL)
	listeners := listener.NewRegistry()
	am := newRecordingListener()
	listeners.SetAdvancedMsgListener(am)

	convSyncer := conversation.New(st, api, listeners, "me")
	friendSyncer := friend.New(st, api, listeners, "me")
	sender := message.NewSender(st, transport.New(), api, "me", "tok")
	guard := dedup.New(10)

	return New(guard, convSyncer, friendSyncer, sender, listeners), am
}

func textMsg(clientMsgID, sendID string, seq int64) *model.Message {
	return &model.Message{
		ClientMsgID: clientMsgID,
		SendID:      sendID,
		ContentType: model.ContentText,
		Content:     "hello",
		Seq:         seq,
		SendTime:    seq * 1000,
	}
}

func TestHandlePush_RoutesRegularMessageToOnRecvNewMessage(t *testing.T) {
	d, am := newTestDispatcher(t)

	push := PushMessages{Msgs: map[string][]*model.Message{
		"conv1": {textMsg("m1", "them", 1)},
	}}
	data, _ := json.Marshal(push)
	d.handlePush(transport.InFrame{Data: data})

	am.awaitPrefix(t, "new:")
}

func TestHandlePush_DedupSuppressesRepeatedClientMsgID(t *testing.T) {
	d, am := newTestDispatcher(t)

	push := PushMessages{Msgs: map[string][]*model.Message{
		"conv1": {textMsg("dupe", "them", 1)},
	}}
	data, _ := json.Marshal(push)

	d.handlePush(transport.InFrame{Data: data})
	am.awaitPrefix(t, "new:")

	d.handlePush(transport.InFrame{Data: data})
	am.expectNone(t)
}

func TestHandlePush_RevokeContentDispatchesOnNewRecvMessageRevoked(t *testing.T) {
	d, am := newTestDispatcher(t)

	detail, _ := json.Marshal(map[string]any{
		"clientMsgID": "orig-1",
		"revokerID":   "them",
		"revokeTime":  1234,
	})
	msg := &model.Message{
		ClientMsgID: "revoke-evt-1",
		SendID:      "them",
		ContentType: model.ContentRevoke,
		Content:     string(detail),
		Seq:         2,
	}
	push := PushMessages{Msgs: map[string][]*model.Message{"conv1": {msg}}}
	data, _ := json.Marshal(push)
	d.handlePush(transport.InFrame{Data: data})

	am.awaitPrefix(t, "revoke:")
}

func TestHandlePush_ReadReceiptContentDispatchesOnRecvC2CReadReceipt(t *testing.T) {
	d, am := newTestDispatcher(t)

	detail, _ := json.Marshal(map[string]any{"userID": "them", "seqs": []int64{1, 2}})
	msg := &model.Message{
		ClientMsgID: "receipt-evt-1",
		SendID:      "them",
		ContentType: model.ContentHasReadReceipt,
		Content:     string(detail),
		Seq:         3,
	}
	push := PushMessages{Msgs: map[string][]*model.Message{"conv1": {msg}}}
	data, _ := json.Marshal(push)
	d.handlePush(transport.InFrame{Data: data})

	am.awaitPrefix(t, "receipt:")
}

func TestHandlePush_TypingContentSkipsConversationUpdateButDispatches(t *testing.T) {
	d, am := newTestDispatcher(t)

	detail, _ := json.Marshal(map[string]any{"msgTip": "typing"})
	msg := &model.Message{
		ClientMsgID: "typing-evt-1",
		SendID:      "them",
		ContentType: model.ContentTyping,
		Content:     string(detail),
		SendTime:    1000,
	}
	push := PushMessages{Msgs: map[string][]*model.Message{"conv1": {msg}}}
	data, _ := json.Marshal(push)
	d.handlePush(transport.InFrame{Data: data})

	am.awaitPrefix(t, "typing:")

	// A conversation update would have produced a listed conversation row
	// (non-zero latest_msg_send_time) before the callback fired.
	convs, err := d.conv.GetConversationListSplit(0, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("expected typing message to leave conversations untouched, got %+v", convs)
	}
}

func TestHandlePush_ReactionContentTypesHaveNoCallback(t *testing.T) {
	d, am := newTestDispatcher(t)

	msg := &model.Message{
		ClientMsgID: "reaction-evt-1",
		SendID:      "them",
		ContentType: model.ContentReactionModifier,
		Content:     "{}",
		Seq:         4,
	}
	push := PushMessages{Msgs: map[string][]*model.Message{"conv1": {msg}}}
	data, _ := json.Marshal(push)
	d.handlePush(transport.InFrame{Data: data})

	am.expectNone(t)
}

func TestHandleKickOffline_CallsOnKickedOffline(t *testing.T) {
	d, am := newTestDispatcher(t)
	d.handleKickOffline()
	am.awaitPrefix(t, "kicked")
}

func TestHandleDisconnected_CallsOnConnectionStatusChangedFalse(t *testing.T) {
	d, am := newTestDispatcher(t)
	d.handleDisconnected("network error")
	am.awaitPrefix(t, "disconnected")
}

func TestHandleSendAck_AppliesAckToStore(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if err := st.InsertMessage("conv1", &model.Message{
		ClientMsgID: "pending-1",
		SendID:      "me",
		ContentType: model.ContentText,
		Content:     "hi",
		Status:      model.StatusSending,
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	api := httpclient.New("http://example.invalid")
	sender := message.NewSender(st, transport.New(), api, "me", "tok")
	guard := dedup.New(10)
	listeners := listener.NewRegistry()

	d := New(guard, conversation.New(st, api, listeners, "me"), friend.New(st, api, listeners, "me"), sender, listeners)

	ack := sendAckPayload{ConversationID: "conv1", ClientMsgID: "pending-1", ServerMsgID: "srv-1", Seq: 7}
	data, _ := json.Marshal(ack)
	d.handleSendAck(transport.InFrame{Data: data})

	got, err := st.GetMessageByClientMsgID("conv1", "pending-1")
	if err != nil {
		t.Fatalf("get after ack: %v", err)
	}
	if got == nil || got.ServerMsgID != "srv-1" || got.Seq != 7 || got.Status != model.StatusServerReceived {
		t.Fatalf("expected ack applied, got %+v", got)
	}
}
