// Package dispatcher classifies and routes every inbound binary frame, per
// spec §4.2: push fan-out, send-ack application, and kick-offline handling,
// with a dedup gate and per-message content-type routing in between.
package dispatcher

import (
	"context"
	"encoding/json"
	"log"
	"sort"

	"github.com/xiaohei189/openim-sdk-core/internal/conversation"
	"github.com/xiaohei189/openim-sdk-core/internal/dedup"
	"github.com/xiaohei189/openim-sdk-core/internal/friend"
	"github.com/xiaohei189/openim-sdk-core/internal/listener"
	"github.com/xiaohei189/openim-sdk-core/internal/message"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/transport"
)

// Dispatcher wires the transport session's callbacks to the syncers and
// listener registry. Construct one and attach it with Attach.
type Dispatcher struct {
	dedup     *dedup.Guard
	conv      *conversation.Syncer
	friends   *friend.Syncer
	sender    *message.Sender
	listeners *listener.Registry
}

// New constructs a Dispatcher. guard may be nil to use dedup.DefaultCapacity.
func New(guard *dedup.Guard, conv *conversation.Syncer, friends *friend.Syncer, sender *message.Sender, listeners *listener.Registry) *Dispatcher {
	if guard == nil {
		guard = dedup.New(dedup.DefaultCapacity)
	}
	return &Dispatcher{dedup: guard, conv: conv, friends: friends, sender: sender, listeners: listeners}
}

// Attach registers the dispatcher's handlers on session, per spec §4.1's
// "dispatcher starts" handshake requirement.
func (d *Dispatcher) Attach(session *transport.Session) {
	session.SetOnPush(d.handlePush)
	session.SetOnSendAck(d.handleSendAck)
	session.SetOnKickOffline(d.handleKickOffline)
	session.SetOnDisconnected(d.handleDisconnected)
}

func (d *Dispatcher) handleDisconnected(reason string) {
	d.listeners.AdvancedMsg().OnConnectionStatusChanged(false)
	if reason != "" {
		log.Printf("[dispatcher] disconnected: %s", reason)
	}
}

func (d *Dispatcher) handleKickOffline() {
	d.listeners.AdvancedMsg().OnKickedOffline()
}

func (d *Dispatcher) handleSendAck(frame transport.InFrame) {
	if frame.ErrCode != 0 {
		log.Printf("[dispatcher] send ack error: errCode=%d errMsg=%s", frame.ErrCode, frame.ErrMsg)
		return
	}
	var ack sendAckPayload
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		log.Printf("[dispatcher] malformed send ack, dropping: %v", err)
		return
	}
	if err := d.sender.ApplySendAck(ack.ConversationID, ack.ClientMsgID, ack.ServerMsgID, ack.Seq); err != nil {
		log.Printf("[dispatcher] apply send ack %q: %v", ack.ClientMsgID, err)
	}
}

// handlePush decodes a push frame's PushMessages payload and processes
// every conversation's message list in server order, per spec §4.2.
func (d *Dispatcher) handlePush(frame transport.InFrame) {
	if frame.ErrCode != 0 {
		log.Printf("[dispatcher] push frame error: errCode=%d errMsg=%s", frame.ErrCode, frame.ErrMsg)
		return
	}
	var push PushMessages
	if err := json.Unmarshal(frame.Data, &push); err != nil {
		log.Printf("[dispatcher] malformed push payload, dropping: %v", err)
		return
	}

	ctx := context.Background()
	for _, convID := range sortedKeys(push.Msgs) {
		for _, msg := range push.Msgs[convID] {
			d.routeMessage(ctx, convID, msg, false)
		}
	}
	for _, convID := range sortedKeys(push.NotificationMsgs) {
		for _, msg := range push.NotificationMsgs[convID] {
			d.routeMessage(ctx, convID, msg, true)
		}
	}
}

// sortedKeys gives push processing a deterministic per-frame conversation
// order; the spec only guarantees in-order processing within one
// conversation's message list, but a stable overall order makes dispatcher
// behavior reproducible in tests.
func sortedKeys(m map[string][]*model.Message) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// routeMessage implements the per-message routing rules of spec §4.2:
// dedup gate, content-type dispatch, conversation update side-effect
// (skipped for TYPING), and the friend-sync trigger.
func (d *Dispatcher) routeMessage(ctx context.Context, convID string, msg *model.Message, isNotification bool) {
	if d.dedup.Seen(msg.ClientMsgID) {
		return
	}
	msg.ConversationID = convID

	if msg.ContentType != model.ContentTyping {
		if err := d.conv.OnNewMessage(ctx, convID, msg, isNotification); err != nil {
			log.Printf("[dispatcher] conversation update for %q: %v", convID, err)
		}
	}

	if msg.ContentType.IsFriendRelation() {
		go func() {
			if err := d.friends.IncrSync(context.Background()); err != nil {
				log.Printf("[dispatcher] friend-sync trigger: %v", err)
			}
		}()
	}

	go d.dispatchContent(convID, msg)
}

// dispatchContent implements spec §4.2 step 2's content-type dispatch. Run
// on a detached goroutine so listener slowness never back-pressures the
// push reader, per spec §5.
func (d *Dispatcher) dispatchContent(convID string, msg *model.Message) {
	am := d.listeners.AdvancedMsg()

	switch msg.ContentType {
	case model.ContentRevoke:
		var detail revokeDetail
		if err := json.Unmarshal([]byte(msg.Content), &detail); err != nil {
			log.Printf("[dispatcher] malformed revoke detail, dropping: %v", err)
			return
		}
		payload, err := json.Marshal(map[string]any{
			"clientMsgID":    detail.ClientMsgID,
			"revokerID":      detail.RevokerID,
			"revokeTime":     detail.RevokeTime,
			"seq":            msg.Seq,
			"conversationID": convID,
		})
		if err != nil {
			log.Printf("[dispatcher] marshal revoke event: %v", err)
			return
		}
		am.OnNewRecvMessageRevoked(string(payload))

	case model.ContentHasReadReceipt:
		var detail readReceiptDetail
		if err := json.Unmarshal([]byte(msg.Content), &detail); err != nil {
			log.Printf("[dispatcher] malformed read-receipt detail, dropping: %v", err)
			return
		}
		payload, err := json.Marshal(map[string]any{
			"conversationID": convID,
			"userID":         detail.UserID,
			"seqs":           detail.Seqs,
		})
		if err != nil {
			log.Printf("[dispatcher] marshal read-receipt event: %v", err)
			return
		}
		am.OnRecvC2CReadReceipt(string(payload))

	case model.ContentTyping:
		var detail typingDetail
		if err := json.Unmarshal([]byte(msg.Content), &detail); err != nil {
			log.Printf("[dispatcher] malformed typing detail, dropping: %v", err)
			return
		}
		payload, err := json.Marshal(map[string]any{
			"conversationID": convID,
			"sendID":         msg.SendID,
			"msgTip":         detail.MsgTip,
		})
		if err != nil {
			log.Printf("[dispatcher] marshal typing event: %v", err)
			return
		}
		am.OnRecvTypingStatus(string(payload))

	case model.ContentReactionModifier, model.ContentReactionDeleter:
		// Recognized but currently no callback, per spec §4.2.

	default:
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Printf("[dispatcher] marshal message event: %v", err)
			return
		}
		am.OnRecvNewMessage(string(payload))
	}
}
