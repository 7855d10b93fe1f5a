// Package model holds the shared data types that flow between the local
// store, the syncers, and the transport/dispatcher layers.
package model

// ConversationType distinguishes the kind of peer a conversation talks to.
type ConversationType int

const (
	ConversationSingle ConversationType = iota + 1
	ConversationGroup
	ConversationSuperGroup
	ConversationNotification
)

// RecvMsgOpt controls whether and how a conversation notifies on new messages.
type RecvMsgOpt int

const (
	RecvMsgOptNotify RecvMsgOpt = iota
	RecvMsgOptSilent
	RecvMsgOptBlock
)

// Conversation is the locally-replicated view of a conversation, per spec §3.
type Conversation struct {
	ConversationID      string `json:"conversationID"`
	ConversationType     ConversationType `json:"conversationType"`
	UserID               string `json:"userID,omitempty"`
	GroupID              string `json:"groupID,omitempty"`
	ShowName             string `json:"showName"`
	FaceURL              string `json:"faceURL"`
	LatestMsg            string `json:"latestMsg"`
	LatestMsgSendTime    int64  `json:"latestMsgSendTime"`
	UnreadCount          int32  `json:"unreadCount"`
	RecvMsgOpt           RecvMsgOpt `json:"recvMsgOpt"`
	IsPinned             bool   `json:"isPinned"`
	IsPrivateChat        bool   `json:"isPrivateChat"`
	BurnDuration         int32  `json:"burnDuration"`
	GroupAtType          int32  `json:"groupAtType"`
	IsNotInGroup         bool   `json:"isNotInGroup"`
	UpdateUnreadCountTime int64 `json:"updateUnreadCountTime"`
	MaxSeq               int64  `json:"maxSeq"`
	MinSeq               int64  `json:"minSeq"`
	IsMsgDestruct        bool   `json:"isMsgDestruct"`
	MsgDestructTime      int64  `json:"msgDestructTime"`
	DraftText            string `json:"draftText"`
	DraftTextTime        int64  `json:"draftTextTime"`
	AttachedInfo         string `json:"attachedInfo"`
	Ex                   string `json:"ex"`
}

// Friend is the locally-replicated view of one friend relationship, keyed by
// (OwnerUserID, FriendUserID), per spec §3.
type Friend struct {
	OwnerUserID    string `json:"ownerUserID"`
	FriendUserID   string `json:"friendUserID"`
	Remark         string `json:"remark"`
	Nickname       string `json:"nickname"`
	FaceURL        string `json:"faceURL"`
	AddSource      int32  `json:"addSource"`
	OperatorUserID string `json:"operatorUserID"`
	CreateTime     int64  `json:"createTime"`
	Ex             string `json:"ex"`
	AttachedInfo   string `json:"attachedInfo"`
	IsPinned       bool   `json:"isPinned"`
}

// VersionRow is the per-(table, user) sync cursor, per spec §3.
type VersionRow struct {
	TableName string `json:"tableName"`
	EntityID  string `json:"entityID"`
	Version   uint64 `json:"version"`
	VersionID string `json:"versionID"`
}

const (
	TableConversations = "local_conversations"
	TableFriends       = "local_friends"
)

// MsgStatus tracks an outbound/inbound message's local delivery state.
type MsgStatus int

const (
	StatusSending MsgStatus = iota + 1
	StatusSent
	StatusFailed
	StatusServerReceived
)

// SessionType mirrors ConversationType for message-level routing, kept as a
// distinct type because the wire protocol encodes it independently of the
// conversation it belongs to.
type SessionType int

const (
	SessionSingle SessionType = iota + 1
	SessionGroup
	SessionSuperGroup
	SessionNotification
)

// Message is one row of a per-conversation message log, per spec §3.
type Message struct {
	ClientMsgID      string      `json:"clientMsgID"`
	ServerMsgID      string      `json:"serverMsgID"`
	ConversationID   string      `json:"conversationID"`
	SendID           string      `json:"sendID"`
	RecvID           string      `json:"recvID"`
	GroupID          string      `json:"groupID,omitempty"`
	SenderPlatformID int32       `json:"senderPlatformID"`
	SessionType      SessionType `json:"sessionType"`
	MsgFrom          int32       `json:"msgFrom"`
	ContentType      ContentType `json:"contentType"`
	Content          string      `json:"content"`
	Seq              int64       `json:"seq"`
	SendTime         int64       `json:"sendTime"`
	CreateTime       int64       `json:"createTime"`
	Status           MsgStatus   `json:"status"`
	IsRead           bool        `json:"isRead"`
	AttachedInfo     string      `json:"attachedInfo"`
	Ex               string      `json:"ex"`
	LocalEx          string      `json:"localEx"`
	// Options carries per-message server-side flags (history, persistent,
	// unreadCount, offlinePush, ...); decoded from the wire but not persisted.
	Options map[string]bool `json:"options,omitempty"`
}

// ContentType enumerates the message payload kinds the dispatcher and
// conversation syncer must classify, per spec §4.2 and §4.3's summary rule.
type ContentType int32

const (
	ContentText ContentType = 101 + iota
	ContentPicture
	ContentVoice
	ContentVideo
	ContentFile
	ContentAtText
	ContentLocation
	ContentMerger
	ContentCard
)

const (
	ContentRevoke            ContentType = 2101
	ContentHasReadReceipt    ContentType = 2150
	ContentTyping            ContentType = 2200
	ContentReactionModifier  ContentType = 2201
	ContentReactionDeleter   ContentType = 2202
)

// Notification content-type ranges, per spec §4.2/§4.3/§4.4.
const (
	NotificationRangeStart ContentType = 1000
	NotificationRangeEnd   ContentType = 2099

	FriendRelationRangeStart ContentType = 1201
	FriendRelationRangeEnd   ContentType = 1210

	ConversationChangeRangeStart ContentType = 1300
	ConversationChangeRangeEnd  ContentType = 1310
)

// IsNotification reports whether ct falls in the system/relational range.
func (ct ContentType) IsNotification() bool {
	return ct >= NotificationRangeStart && ct <= NotificationRangeEnd
}

// IsFriendRelation reports whether ct should trigger a friend incremental sync.
func (ct ContentType) IsFriendRelation() bool {
	return ct >= FriendRelationRangeStart && ct <= FriendRelationRangeEnd
}

// IsConversationStructural reports whether ct lies in the 1300-1310
// conversation notification range (conversation-change, private-chat,
// clear-conversation, unread, delete-conversation), which the conversation
// syncer resolves via a full incremental sync rather than a local patch.
// Read-receipt is outside this range; the syncer checks it separately.
func (ct ContentType) IsConversationStructural() bool {
	return ct >= ConversationChangeRangeStart && ct <= ConversationChangeRangeEnd
}

// SeqEntry is one row of the has-read/max-seq reconciliation map, per spec §4.3.
type SeqEntry struct {
	ConvID      string `json:"convID"`
	MaxSeq      int64  `json:"maxSeq"`
	HasReadSeq  int64  `json:"hasReadSeq"`
	MaxSeqTime  int64  `json:"maxSeqTime"`
}
