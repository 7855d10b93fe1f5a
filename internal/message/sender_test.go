package message

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xiaohei189/openim-sdk-core/internal/httpclient"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/store"
	"github.com/xiaohei189/openim-sdk-core/internal/transport"
)

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// outFrameOnWire mirrors what a real server would decode: per spec §6,
// OutFrame.Data travels as a plain JSON number array, not a base64 string,
// so a decoder for it must type Data as []int rather than []byte.
type outFrameOnWire struct {
	ReqIdentifier int32  `json:"reqIdentifier"`
	Token         string `json:"token"`
	SendID        string `json:"sendID"`
	OperationID   string `json:"operationID"`
	MsgIncr       string `json:"msgIncr"`
	Data          []int  `json:"data"`
}

func (w outFrameOnWire) toOutFrame() transport.OutFrame {
	data := make([]byte, len(w.Data))
	for i, b := range w.Data {
		data[i] = byte(b)
	}
	return transport.OutFrame{
		ReqIdentifier: w.ReqIdentifier,
		Token:         w.Token,
		SendID:        w.SendID,
		OperationID:   w.OperationID,
		MsgIncr:       w.MsgIncr,
		Data:          data,
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSender_Send_WithoutSessionReturnsErrNotConnected(t *testing.T) {
	s := openTestStore(t)
	sender := NewSender(s, nil, httpclient.New("http://unused.invalid"), "me", "tok")

	err := sender.Send(context.Background(), Build(BuildParams{LoginUserID: "me", NowUnixNano: 1}), false)
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

var upgrader = websocket.Upgrader{}

// connectedSession stands up a minimal fake server that completes the
// handshake and hands back a Session connected to it.
func connectedSession(t *testing.T, onFrame func(transport.OutFrame)) *transport.Session {
	return connectedSessionWithRaw(t, onFrame, nil)
}

// connectedSessionWithRaw is connectedSession plus an optional onRaw hook
// that sees the decompressed wire bytes before any struct decoding, so
// tests can assert on the literal JSON shape of the data field.
func connectedSessionWithRaw(t *testing.T, onFrame func(transport.OutFrame), onRaw func([]byte)) *transport.Session {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"errCode":0}`))

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			raw, err := func() ([]byte, error) {
				if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
					return gunzip(data)
				}
				return data, nil
			}()
			if err != nil {
				continue
			}
			if onRaw != nil {
				onRaw(raw)
			}
			var wire outFrameOnWire
			if err := json.Unmarshal(raw, &wire); err == nil && onFrame != nil {
				onFrame(wire.toOutFrame())
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	session := transport.New()
	if err := session.Connect(context.Background(), wsURL, transport.Options{Token: "t", SendID: "me"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(session.Disconnect)
	return session
}

func TestSender_Send_PersistsAndFramesMessage(t *testing.T) {
	s := openTestStore(t)

	received := make(chan transport.OutFrame, 1)
	session := connectedSession(t, func(f transport.OutFrame) { received <- f })

	sender := NewSender(s, session, httpclient.New("http://unused.invalid"), "me", "tok")
	msg := Build(BuildParams{ConversationID: "conv1", LoginUserID: "me", RecvID: "them", NowUnixNano: 1, NowUnixMilli: 1000})

	if err := sender.Send(context.Background(), msg, false); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case frame := <-received:
		if frame.ReqIdentifier != transport.ReqSend {
			t.Fatalf("expected reqIdentifier %d, got %d", transport.ReqSend, frame.ReqIdentifier)
		}
		if frame.MsgIncr != msg.ClientMsgID {
			t.Fatalf("expected msgIncr %q, got %q", msg.ClientMsgID, frame.MsgIncr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}

	stored, err := s.GetMessageByClientMsgID("conv1", msg.ClientMsgID)
	if err != nil {
		t.Fatalf("get stored message: %v", err)
	}
	if stored == nil || stored.Status != model.StatusSending {
		t.Fatalf("expected message persisted with Sending status, got %+v", stored)
	}
}

// TestSender_Send_WireDataIsNumberArrayNotBase64 guards spec §6's outbound
// wire asymmetry directly against the bytes that hit the socket: the data
// field must be a JSON number array, never the base64 string
// encoding/json would default to for a bare []byte field.
func TestSender_Send_WireDataIsNumberArrayNotBase64(t *testing.T) {
	s := openTestStore(t)

	rawFrames := make(chan []byte, 1)
	session := connectedSessionWithRaw(t, nil, func(raw []byte) { rawFrames <- raw })

	sender := NewSender(s, session, httpclient.New("http://unused.invalid"), "me", "tok")
	msg := Build(BuildParams{ConversationID: "conv1", LoginUserID: "me", RecvID: "them", NowUnixNano: 2, NowUnixMilli: 2000})

	if err := sender.Send(context.Background(), msg, false); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case raw := <-rawFrames:
		if strings.Contains(string(raw), `"data":"`) {
			t.Fatalf("expected data as a number array, found a quoted base64 string: %s", raw)
		}
		if !strings.Contains(string(raw), `"data":[`) {
			t.Fatalf("expected data as a JSON number array, got: %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
}

func TestSender_ApplySendAck_UpdatesStatusAndSeq(t *testing.T) {
	s := openTestStore(t)
	sender := NewSender(s, nil, httpclient.New("http://unused.invalid"), "me", "tok")

	if err := s.InsertMessage("conv1", &model.Message{ClientMsgID: "m1", SendID: "me", ContentType: model.ContentText, Status: model.StatusSending}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := sender.ApplySendAck("conv1", "m1", "srv-1", 9); err != nil {
		t.Fatalf("apply ack: %v", err)
	}

	got, err := s.GetMessageByClientMsgID("conv1", "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ServerMsgID != "srv-1" || got.Seq != 9 || got.Status != model.StatusServerReceived {
		t.Fatalf("unexpected message after ack: %+v", got)
	}
}

func TestSender_ApplySendAck_UnknownMessageReturnsError(t *testing.T) {
	s := openTestStore(t)
	sender := NewSender(s, nil, httpclient.New("http://unused.invalid"), "me", "tok")

	err := sender.ApplySendAck("conv1", "nonexistent", "srv-1", 1)
	if err != ErrUnknownMessage {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestSender_Revoke_PreconditionErrors(t *testing.T) {
	s := openTestStore(t)
	sender := NewSender(s, nil, httpclient.New("http://unused.invalid"), "me", "tok")

	if err := s.InsertMessage("conv1", &model.Message{ClientMsgID: "no-seq", SendID: "me", ContentType: model.ContentText, Seq: 0, Status: model.StatusServerReceived}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := sender.Revoke(context.Background(), "conv1", "no-seq"); err != ErrRevokeNoSeq {
		t.Fatalf("expected ErrRevokeNoSeq, got %v", err)
	}

	if err := s.InsertMessage("conv1", &model.Message{ClientMsgID: "not-acked", SendID: "me", ContentType: model.ContentText, Seq: 5, Status: model.StatusSending}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := sender.Revoke(context.Background(), "conv1", "not-acked"); err != ErrRevokeNotServerReceived {
		t.Fatalf("expected ErrRevokeNotServerReceived, got %v", err)
	}

	if err := sender.Revoke(context.Background(), "conv1", "missing"); err != ErrUnknownMessage {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestSender_Revoke_ValidPreconditionCallsServer(t *testing.T) {
	s := openTestStore(t)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"errCode": 0, "errMsg": "", "data": nil})
	}))
	defer srv.Close()

	sender := NewSender(s, nil, httpclient.New(srv.URL), "me", "tok")
	if err := s.InsertMessage("conv1", &model.Message{ClientMsgID: "ready", SendID: "me", ContentType: model.ContentText, Seq: 3, Status: model.StatusServerReceived}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := sender.Revoke(context.Background(), "conv1", "ready"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if gotPath != "/msg/revoke_msg" {
		t.Fatalf("expected revoke_msg endpoint to be called, got %q", gotPath)
	}
}
