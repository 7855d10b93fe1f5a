// Package message implements the outbound send path described in spec
// §4.6: message construction, the default options map, and the revoke
// precondition check, plus wiring the constructed message onto the
// transport session and the local message log.
package message

import (
	"strconv"

	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

// clientMsgID generates a client-assigned message id: user_id followed by
// a nanosecond timestamp, per spec §4.6. Collisions are astronomically
// unlikely at nanosecond resolution for a single sender.
func clientMsgID(userID string, nowNano int64) string {
	return userID + strconv.FormatInt(nowNano, 10)
}

// DefaultOptions builds the options map of spec §4.6. isOnlineOnly inverts
// unreadCount and offlinePush, matching the original's "transient delivery
// doesn't need a receipt or a push" rule.
func DefaultOptions(isOnlineOnly bool) map[string]bool {
	return map[string]bool{
		"history":                  true,
		"persistent":               true,
		"senderSync":               true,
		"conversationUpdate":       true,
		"senderConversationUpdate": true,
		"unreadCount":              !isOnlineOnly,
		"offlinePush":              !isOnlineOnly,
	}
}

// BuildParams carries the caller-supplied fields a Build call needs beyond
// what it derives itself.
type BuildParams struct {
	ConversationID   string
	LoginUserID      string
	RecvID           string
	GroupID          string
	SenderPlatformID int32
	ContentType      model.ContentType
	Content          string
	IsOnlineOnly     bool
	NowUnixMilli     int64
	NowUnixNano      int64
}

// Build constructs an in-memory message per spec §4.6: client_msg_id is
// user_id + a nanosecond timestamp, send_time = create_time = now,
// session_type is derived from the presence of group_id, content is an
// element-type-specific JSON string supplied by the caller.
func Build(p BuildParams) *model.Message {
	sessionType := model.SessionSingle
	if p.GroupID != "" {
		sessionType = model.SessionGroup
	}
	return &model.Message{
		ClientMsgID:      clientMsgID(p.LoginUserID, p.NowUnixNano),
		ConversationID:   p.ConversationID,
		SendID:           p.LoginUserID,
		RecvID:           p.RecvID,
		GroupID:          p.GroupID,
		SenderPlatformID: p.SenderPlatformID,
		SessionType:      sessionType,
		ContentType:      p.ContentType,
		Content:          p.Content,
		SendTime:         p.NowUnixMilli,
		CreateTime:       p.NowUnixMilli,
		Status:           model.StatusSending,
		Options:          DefaultOptions(p.IsOnlineOnly),
	}
}

// textContent encodes plain text per the TEXT content-type's JSON shape,
// matching the decode side's textSummary rule in the conversation syncer.
type textContent struct {
	Content string `json:"content"`
}

// BuildText is the common case of Build for ContentText messages.
func BuildText(p BuildParams, text string) *model.Message {
	p.ContentType = model.ContentText
	encoded, err := marshalContent(textContent{Content: text})
	if err != nil {
		// marshaling a one-field struct with a string payload cannot fail;
		// fall back to the raw text rather than panicking on the send path.
		encoded = text
	}
	p.Content = encoded
	return Build(p)
}
