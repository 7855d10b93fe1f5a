package dispatcher

import "github.com/xiaohei189/openim-sdk-core/internal/model"

// PushMessages mirrors the server's push payload: two maps keyed by
// conversation_id, per spec §4.2. Regular messages and notification
// messages are delivered through the same new-message callback but kept in
// separate maps on the wire so the dispatcher knows which is which.
type PushMessages struct {
	Msgs             map[string][]*model.Message `json:"msgs"`
	NotificationMsgs map[string][]*model.Message `json:"notification_msgs"`
}

// sendAckPayload is the decoded shape of a successful send ack, per spec
// §4.2: "successful acks carry a (server_msg_id, client_msg_id) pair that
// may update the local log's status and seq."
type sendAckPayload struct {
	ConversationID string `json:"conversationID"`
	ClientMsgID    string `json:"clientMsgID"`
	ServerMsgID    string `json:"serverMsgID"`
	Seq            int64  `json:"seq"`
}

// revokeDetail is embedded in a REVOKE notification's content, naming the
// message being revoked.
type revokeDetail struct {
	ClientMsgID string `json:"clientMsgID"`
	RevokerID   string `json:"revokerID"`
	RevokeTime  int64  `json:"revokeTime"`
}

// readReceiptDetail is embedded in a HAS_READ_RECEIPT notification's
// content: the seq list the peer has read.
type readReceiptDetail struct {
	UserID string  `json:"userID"`
	Seqs   []int64 `json:"seqs"`
}

// typingDetail is embedded in a TYPING notification's content.
type typingDetail struct {
	MsgTip string `json:"msgTip"`
}
