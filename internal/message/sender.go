package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xiaohei189/openim-sdk-core/internal/httpclient"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/store"
	"github.com/xiaohei189/openim-sdk-core/internal/transport"
)

// Precondition errors per spec §7: these return to the caller without
// touching server state.
var (
	ErrNotConnected          = errors.New("message: not connected")
	ErrRevokeNoSeq           = errors.New("message: cannot revoke a message with no server-assigned seq")
	ErrRevokeNotServerReceived = errors.New("message: cannot revoke a message the server has not acknowledged")
	ErrUnknownMessage        = errors.New("message: no such client_msg_id in this conversation")
)

// Sender owns the outbound send path: it persists the message to the local
// log, frames it onto the transport session, and — for revoke — validates
// the precondition against the local log before calling the server.
type Sender struct {
	store       *store.Store
	session     *transport.Session
	api         *httpclient.Client
	loginUserID string
	token       string
}

// NewSender constructs a Sender for loginUserID using the given token for
// outbound frames.
func NewSender(st *store.Store, session *transport.Session, api *httpclient.Client, loginUserID, token string) *Sender {
	return &Sender{store: st, session: session, api: api, loginUserID: loginUserID, token: token}
}

// SetToken updates the token attached to outbound frames, mirroring a
// re-login or token refresh.
func (s *Sender) SetToken(token string) { s.token = token }

// Send persists msg to its conversation's local log as "sending", then
// frames it onto the transport session with reqIdentifier 1003 (or 3001 for
// the not-oss variant), per spec §4.6.
func (s *Sender) Send(ctx context.Context, msg *model.Message, useNotOSS bool) error {
	if s.session == nil {
		return ErrNotConnected
	}
	if err := s.store.InsertMessage(msg.ConversationID, msg); err != nil {
		return fmt.Errorf("message: persist before send: %w", err)
	}

	reqID := int32(transport.ReqSend)
	if useNotOSS {
		reqID = transport.ReqSendNotOSS
	}
	payload, err := marshalMsgData(msg)
	if err != nil {
		return fmt.Errorf("message: encode payload: %w", err)
	}

	frame := transport.OutFrame{
		ReqIdentifier: reqID,
		Token:         s.token,
		SendID:        s.loginUserID,
		OperationID:   uuid.NewString(),
		MsgIncr:       msg.ClientMsgID,
		Data:          payload,
	}
	if err := s.session.Send(frame); err != nil {
		return fmt.Errorf("message: send frame: %w", err)
	}
	return nil
}

// marshalMsgData stands in for the server's protobuf MsgData encoding: the
// outer frame's wire contract (spec §6) only requires raw bytes here, and
// no generated protobuf bindings are available to this module, so the
// message is JSON-encoded instead. See the grounding ledger for the reasoning.
func marshalMsgData(msg *model.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// ApplySendAck updates a message's status and seq from a successful send
// ack, per spec §4.2's "successful acks carry a (server_msg_id,
// client_msg_id) pair that may update the local log's status and seq."
func (s *Sender) ApplySendAck(conversationID, clientMsgID, serverMsgID string, seq int64) error {
	msg, err := s.store.GetMessageByClientMsgID(conversationID, clientMsgID)
	if err != nil {
		return fmt.Errorf("message: load for ack: %w", err)
	}
	if msg == nil {
		return ErrUnknownMessage
	}
	msg.ServerMsgID = serverMsgID
	msg.Seq = seq
	msg.Status = model.StatusServerReceived
	return s.store.InsertMessage(conversationID, msg)
}

// Revoke implements spec §4.5's revoke precondition: local lookup by
// client_msg_id, require seq > 0 and status == server-received, then call
// the revoke endpoint.
func (s *Sender) Revoke(ctx context.Context, conversationID, clientMsgID string) error {
	msg, err := s.store.GetMessageByClientMsgID(conversationID, clientMsgID)
	if err != nil {
		return fmt.Errorf("message: load for revoke: %w", err)
	}
	if msg == nil {
		return ErrUnknownMessage
	}
	if msg.Seq <= 0 {
		return ErrRevokeNoSeq
	}
	if msg.Status != model.StatusServerReceived {
		return ErrRevokeNotServerReceived
	}
	return s.api.RevokeMsg(ctx, httpclient.RevokeMsgRequest{
		ConversationID: conversationID,
		Seq:            msg.Seq,
		UserID:         s.loginUserID,
	})
}

// UpdateTypingStatus sends a typing-indicator update, the outbound half of
// spec §4.2's TYPING path (the original's symmetric client.rs send path —
// spec.md lists the endpoint but only specifies the inbound path).
func (s *Sender) UpdateTypingStatus(ctx context.Context, recvID, msgTip string) error {
	return s.api.TypingStatusUpdate(ctx, httpclient.TypingStatusUpdateRequest{
		RecvID: recvID,
		MsgTip: msgTip,
		SendID: s.loginUserID,
	})
}
