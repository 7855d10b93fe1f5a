// Package listener defines the SDK's three callback capability sets and an
// atomically-swappable holder for them, per spec §4.7. All payloads are
// JSON strings, decoupling the listener contract from internal types —
// mirrored after the teacher's Set* callback fields, generalized into
// interfaces so an embedder can satisfy one capability without the others.
package listener

import "sync/atomic"

// ConversationListener receives conversation-syncer lifecycle and state
// events, per spec §4.7.
type ConversationListener interface {
	OnSyncServerStart(reinstalled bool)
	OnSyncServerFinish(reinstalled bool)
	OnSyncServerProgress(percent int32)
	OnSyncServerFailed(reinstalled bool, err error)
	OnNewConversation(conversationListJSON string)
	OnConversationChanged(conversationListJSON string)
	OnTotalUnreadMessageCountChanged(count int32)
	OnConversationUserInputStatusChanged(change string)
}

// FriendListener receives friend-syncer state events, per spec §4.7.
type FriendListener interface {
	OnFriendListChanged(friendListJSON string)
	OnBlackListChanged(blackListJSON string)
	OnFriendRequestListChanged(requestListJSON string)
}

// AdvancedMsgListener receives push-dispatcher message events, per spec §4.7.
type AdvancedMsgListener interface {
	OnRecvNewMessage(msgJSON string)
	OnRecvOfflineNewMessage(msgJSON string)
	OnRecvOnlineOnlyMessage(msgJSON string)
	OnRecvC2CReadReceipt(receiptJSON string)
	OnNewRecvMessageRevoked(eventJSON string)
	OnMsgDeleted(msgJSON string)
	OnRecvTypingStatus(typingJSON string)
	OnKickedOffline()
	OnConnectionStatusChanged(connected bool)
}

// NoOpConversationListener is the default no-op implementation; embed it to
// satisfy ConversationListener while only overriding the methods you need.
type NoOpConversationListener struct{}

func (NoOpConversationListener) OnSyncServerStart(bool)                       {}
func (NoOpConversationListener) OnSyncServerFinish(bool)                      {}
func (NoOpConversationListener) OnSyncServerProgress(int32)                   {}
func (NoOpConversationListener) OnSyncServerFailed(bool, error)               {}
func (NoOpConversationListener) OnNewConversation(string)                     {}
func (NoOpConversationListener) OnConversationChanged(string)                 {}
func (NoOpConversationListener) OnTotalUnreadMessageCountChanged(int32)       {}
func (NoOpConversationListener) OnConversationUserInputStatusChanged(string)  {}

// NoOpFriendListener is the default no-op implementation of FriendListener.
type NoOpFriendListener struct{}

func (NoOpFriendListener) OnFriendListChanged(string)        {}
func (NoOpFriendListener) OnBlackListChanged(string)          {}
func (NoOpFriendListener) OnFriendRequestListChanged(string)  {}

// NoOpAdvancedMsgListener is the default no-op implementation of AdvancedMsgListener.
type NoOpAdvancedMsgListener struct{}

func (NoOpAdvancedMsgListener) OnRecvNewMessage(string)          {}
func (NoOpAdvancedMsgListener) OnRecvOfflineNewMessage(string)   {}
func (NoOpAdvancedMsgListener) OnRecvOnlineOnlyMessage(string)   {}
func (NoOpAdvancedMsgListener) OnRecvC2CReadReceipt(string)      {}
func (NoOpAdvancedMsgListener) OnNewRecvMessageRevoked(string)   {}
func (NoOpAdvancedMsgListener) OnMsgDeleted(string)              {}
func (NoOpAdvancedMsgListener) OnRecvTypingStatus(string)        {}
func (NoOpAdvancedMsgListener) OnKickedOffline()                 {}
func (NoOpAdvancedMsgListener) OnConnectionStatusChanged(bool)   {}

// registered holds the currently-attached listeners. A zero value holds
// no-ops so the holder is always safe to read from.
type registered struct {
	conversation ConversationListener
	friend       FriendListener
	advancedMsg  AdvancedMsgListener
}

// Registry is an atomically-swappable holder for the three listener
// capability sets, per spec §4.7 and the Design Notes' "rebuild-on-attach is
// a workaround, not a requirement": the facade swaps listeners without
// rebuilding any syncer or dispatcher goroutine.
type Registry struct {
	ptr atomic.Pointer[registered]
}

// NewRegistry returns a Registry pre-populated with no-op listeners.
func NewRegistry() *Registry {
	r := &Registry{}
	r.ptr.Store(&registered{
		conversation: NoOpConversationListener{},
		friend:       NoOpFriendListener{},
		advancedMsg:  NoOpAdvancedMsgListener{},
	})
	return r
}

func (r *Registry) snapshot() registered {
	return *r.ptr.Load()
}

// SetConversationListener atomically swaps the conversation listener. A nil
// listener reverts to the no-op default.
func (r *Registry) SetConversationListener(l ConversationListener) {
	if l == nil {
		l = NoOpConversationListener{}
	}
	cur := r.snapshot()
	cur.conversation = l
	r.ptr.Store(&cur)
}

// SetFriendListener atomically swaps the friend listener.
func (r *Registry) SetFriendListener(l FriendListener) {
	if l == nil {
		l = NoOpFriendListener{}
	}
	cur := r.snapshot()
	cur.friend = l
	r.ptr.Store(&cur)
}

// SetAdvancedMsgListener atomically swaps the advanced message listener.
func (r *Registry) SetAdvancedMsgListener(l AdvancedMsgListener) {
	if l == nil {
		l = NoOpAdvancedMsgListener{}
	}
	cur := r.snapshot()
	cur.advancedMsg = l
	r.ptr.Store(&cur)
}

func (r *Registry) Conversation() ConversationListener { return r.snapshot().conversation }
func (r *Registry) Friend() FriendListener              { return r.snapshot().friend }
func (r *Registry) AdvancedMsg() AdvancedMsgListener     { return r.snapshot().advancedMsg }
