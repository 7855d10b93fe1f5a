// Package conversation implements the conversation version-vector syncer
// described in spec §4.3: it converges the local conversations table to the
// server's authoritative view, maintains unread_count, and applies the
// push-driven local patch for ordinary messages.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/xiaohei189/openim-sdk-core/internal/httpclient"
	"github.com/xiaohei189/openim-sdk-core/internal/listener"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/store"
)

// Syncer owns one user's conversation replica. Passes are serialized with a
// mutex per spec §5's "syncer passes are serialized per-syncer" requirement
// — a concurrent second call simply waits rather than racing the first.
type Syncer struct {
	passMu sync.Mutex

	store       *store.Store
	api         *httpclient.Client
	listeners   *listener.Registry
	loginUserID string
}

// New constructs a conversation Syncer for loginUserID.
func New(st *store.Store, api *httpclient.Client, listeners *listener.Registry, loginUserID string) *Syncer {
	return &Syncer{store: st, api: api, listeners: listeners, loginUserID: loginUserID}
}

// IncrSyncConversations runs the full incremental-sync algorithm of spec
// §4.3: it decides between an incremental and a full pass, applies the
// result, and always finishes with the unread-seq reconciliation subroutine.
func (s *Syncer) IncrSyncConversations(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	cl := s.listeners.Conversation()
	cl.OnSyncServerStart(false)
	cl.OnSyncServerProgress(10)

	reinstalled, err := s.runSyncDecisionTree(ctx)
	if err != nil {
		cl.OnSyncServerFailed(reinstalled, err)
		return err
	}
	cl.OnSyncServerProgress(50)

	if err := s.reconcileUnreadSeqs(ctx); err != nil {
		// Reconciliation failure does not invalidate the sync pass itself —
		// it is its own fallible subroutine — but it must still surface.
		log.Printf("[conversation] unread-seq reconciliation: %v", err)
	}
	cl.OnSyncServerProgress(80)

	cl.OnSyncServerProgress(100)
	cl.OnSyncServerFinish(reinstalled)
	return nil
}

// runSyncDecisionTree implements steps 1-4 of spec §4.3's algorithm and
// returns whether this was a "reinstalled" (empty-local-state) pass.
func (s *Syncer) runSyncDecisionTree(ctx context.Context) (bool, error) {
	localConvs, err := s.store.GetAllConversations()
	if err != nil {
		return false, fmt.Errorf("load local conversations: %w", err)
	}

	// Step 2: empty local state means a fresh install (or wipe) — always
	// a full sync.
	if len(localConvs) == 0 {
		return true, s.fullSync(ctx, false)
	}

	versionRow, err := s.store.GetVersion(model.TableConversations, s.loginUserID)
	if err != nil {
		return false, fmt.Errorf("load version row: %w", err)
	}

	// Step 3: no version row recorded yet.
	if versionRow == nil {
		idsResp, err := s.api.GetFullConversationIDs(ctx, httpclient.GetFullConversationIDsRequest{UserID: s.loginUserID})
		if err != nil {
			return false, fmt.Errorf("get full conversation ids: %w", err)
		}
		if sameIDSet(localConvs, idsResp.ConversationIDs) {
			if err := s.store.SetVersion(model.TableConversations, s.loginUserID, idsResp.Version, idsResp.VersionID); err != nil {
				return false, fmt.Errorf("persist initial version: %w", err)
			}
			return false, s.fullSync(ctx, true) // full-sync-without-delete
		}
		return false, s.fullSync(ctx, false)
	}

	// Step 4: incremental call.
	incrResp, err := s.api.GetIncrementalConversations(ctx, httpclient.GetIncrementalConversationsRequest{
		UserID:    s.loginUserID,
		Version:   versionRow.Version,
		VersionID: versionRow.VersionID,
	})
	if err != nil {
		return false, fmt.Errorf("get incremental conversations: %w", err)
	}
	if incrResp.Full {
		return false, s.fullSync(ctx, false)
	}

	if _, _, err := s.applyUpsert(incrResp.Insert); err != nil {
		return false, fmt.Errorf("apply insert: %w", err)
	}
	if _, _, err := s.applyUpsert(incrResp.Update); err != nil {
		return false, fmt.Errorf("apply update: %w", err)
	}
	for _, c := range incrResp.Delete {
		if err := s.store.DeleteConversation(c.ConversationID); err != nil {
			return false, fmt.Errorf("delete conversation %q: %w", c.ConversationID, err)
		}
	}

	if incrResp.VersionID != "" {
		newVersion := incrResp.Version
		if newVersion == 0 {
			// The server's version counter didn't advance visibly; still
			// record forward progress locally so this pass is never replayed.
			newVersion = versionRow.Version + 1
		}
		if err := s.store.SetVersion(model.TableConversations, s.loginUserID, newVersion, incrResp.VersionID); err != nil {
			return false, fmt.Errorf("persist incremental version: %w", err)
		}
	}
	return false, nil
}

// fullSync fetches the authoritative conversation set and id-version pair,
// upserts every returned conversation, and — unless skipDelete — deletes any
// local conversation absent from the server set, per spec §4.3 step 3/4's
// "full sync" / "full-sync-without-delete" paths.
func (s *Syncer) fullSync(ctx context.Context, skipDelete bool) error {
	allResp, err := s.api.GetAllConversations(ctx, httpclient.GetAllConversationsRequest{OwnerUserID: s.loginUserID})
	if err != nil {
		return fmt.Errorf("get all conversations: %w", err)
	}
	idsResp, err := s.api.GetFullConversationIDs(ctx, httpclient.GetFullConversationIDsRequest{UserID: s.loginUserID})
	if err != nil {
		return fmt.Errorf("get full conversation ids: %w", err)
	}

	if _, _, err := s.applyUpsert(allResp.Conversations); err != nil {
		return fmt.Errorf("apply full upsert: %w", err)
	}

	if !skipDelete {
		serverSet := make(map[string]struct{}, len(idsResp.ConversationIDs))
		for _, id := range idsResp.ConversationIDs {
			serverSet[id] = struct{}{}
		}
		localConvs, err := s.store.GetAllConversations()
		if err != nil {
			return fmt.Errorf("reload local conversations: %w", err)
		}
		for _, c := range localConvs {
			if _, ok := serverSet[c.ConversationID]; !ok {
				if err := s.store.DeleteConversation(c.ConversationID); err != nil {
					return fmt.Errorf("delete stale conversation %q: %w", c.ConversationID, err)
				}
			}
		}
	}

	if err := s.store.SetVersion(model.TableConversations, s.loginUserID, idsResp.Version, idsResp.VersionID); err != nil {
		return fmt.Errorf("persist full-sync version: %w", err)
	}
	return nil
}

// conversationsDiffer compares the mutable fields spec §4.3's upsert
// semantics call out, plus unread_count and max_seq.
func conversationsDiffer(local, server *model.Conversation) bool {
	return local.RecvMsgOpt != server.RecvMsgOpt ||
		local.IsPinned != server.IsPinned ||
		local.IsPrivateChat != server.IsPrivateChat ||
		local.BurnDuration != server.BurnDuration ||
		local.IsNotInGroup != server.IsNotInGroup ||
		local.GroupAtType != server.GroupAtType ||
		local.UpdateUnreadCountTime != server.UpdateUnreadCountTime ||
		local.AttachedInfo != server.AttachedInfo ||
		local.Ex != server.Ex ||
		local.MaxSeq != server.MaxSeq ||
		local.MinSeq != server.MinSeq ||
		local.MsgDestructTime != server.MsgDestructTime ||
		local.IsMsgDestruct != server.IsMsgDestruct ||
		local.UnreadCount != server.UnreadCount
}

// applyUpsert implements spec §4.3's upsert semantics: insert absent
// conversations, upsert changed ones, and return both collections. The
// current callers (fullSync and the incremental path) discard them, so a
// sync pass emits no new-conversation or conversation-changed events.
func (s *Syncer) applyUpsert(serverConvs []*model.Conversation) (newConvs, changedConvs []*model.Conversation, err error) {
	for _, sc := range serverConvs {
		local, err := s.store.GetConversation(sc.ConversationID)
		if err != nil {
			return nil, nil, fmt.Errorf("get local conversation %q: %w", sc.ConversationID, err)
		}
		switch {
		case local == nil:
			if err := s.store.UpsertConversation(sc); err != nil {
				return nil, nil, fmt.Errorf("insert conversation %q: %w", sc.ConversationID, err)
			}
			newConvs = append(newConvs, sc)
		case conversationsDiffer(local, sc):
			if err := s.store.UpsertConversation(sc); err != nil {
				return nil, nil, fmt.Errorf("update conversation %q: %w", sc.ConversationID, err)
			}
			changedConvs = append(changedConvs, sc)
		}
	}
	return newConvs, changedConvs, nil
}

// sameIDSet reports whether the local conversation IDs are exactly the
// server's conversation ID set, per spec §4.3 step 3.
func sameIDSet(local []*model.Conversation, serverIDs []string) bool {
	if len(local) != len(serverIDs) {
		return false
	}
	set := make(map[string]struct{}, len(local))
	for _, c := range local {
		set[c.ConversationID] = struct{}{}
	}
	for _, id := range serverIDs {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// reconcileUnreadSeqs is the unread-seq reconciliation subroutine of spec
// §4.3: independent of the insert/update/delete path, it fetches the
// authoritative seq map and brings each conversation's unread_count and
// max_seq in line with it.
func (s *Syncer) reconcileUnreadSeqs(ctx context.Context) error {
	resp, err := s.api.GetConversationsHasReadAndMaxSeq(ctx, httpclient.GetConversationsHasReadAndMaxSeqRequest{UserID: s.loginUserID})
	if err != nil {
		return fmt.Errorf("get conversations has-read and max-seq: %w", err)
	}

	var missing []string
	for convID, seq := range resp.Seqs {
		unread := seq.MaxSeq - seq.HasReadSeq
		if unread < 0 {
			unread = 0
		}

		local, err := s.store.GetConversation(convID)
		if err != nil {
			return fmt.Errorf("get conversation %q: %w", convID, err)
		}
		if local == nil {
			missing = append(missing, convID)
			continue
		}
		if local.UnreadCount == int32(unread) && local.MaxSeq == seq.MaxSeq {
			continue
		}
		if err := s.store.UpdateConversationUnreadAndMaxSeq(convID, int32(unread), seq.MaxSeq); err != nil {
			return fmt.Errorf("update unread/max_seq %q: %w", convID, err)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	allResp, err := s.api.GetAllConversations(ctx, httpclient.GetAllConversationsRequest{OwnerUserID: s.loginUserID})
	if err != nil {
		return fmt.Errorf("get all conversations for missing reconciliation: %w", err)
	}
	byID := make(map[string]*model.Conversation, len(allResp.Conversations))
	for _, c := range allResp.Conversations {
		byID[c.ConversationID] = c
	}
	for _, convID := range missing {
		c, ok := byID[convID]
		if !ok {
			log.Printf("[conversation] seq map referenced unknown conversation %q, skipping", convID)
			continue
		}
		seq := resp.Seqs[convID]
		unread := seq.MaxSeq - seq.HasReadSeq
		if unread < 0 {
			unread = 0
		}
		c.UnreadCount = int32(unread)
		c.MaxSeq = seq.MaxSeq
		if err := s.store.UpsertConversation(c); err != nil {
			return fmt.Errorf("materialize missing conversation %q: %w", convID, err)
		}
	}
	return nil
}

// GetConversationListSplit implements spec §4.3's listing rule by
// delegating to the store, which owns the filter/sort/slice logic.
func (s *Syncer) GetConversationListSplit(offset, count int) ([]*model.Conversation, error) {
	return s.store.GetConversationListSplit(offset, count)
}

// structuralContentType reports whether ct is one of the notification types
// the syncer must resolve via a full incremental sync rather than a local
// patch, per spec §4.3's push-driven update rule: conversation-change,
// private-chat, clear-conversation, unread, delete-conversation (the
// 1300-1310 range) plus read-receipt.
func structuralContentType(ct model.ContentType) bool {
	return ct.IsConversationStructural() || ct == model.ContentHasReadReceipt
}

// OnNewMessage implements spec §4.3's push-driven update: structural
// notification types delegate to a full incremental sync; everything else
// is folded into the conversation's local_conversations row directly.
func (s *Syncer) OnNewMessage(ctx context.Context, convID string, msg *model.Message, isNotification bool) error {
	if structuralContentType(msg.ContentType) {
		return s.IncrSyncConversations(ctx)
	}

	local, err := s.store.GetConversation(convID)
	if err != nil {
		return fmt.Errorf("get conversation %q: %w", convID, err)
	}

	isNew := local == nil
	var conv *model.Conversation
	if local != nil {
		conv = local
	} else {
		conv = synthesizeConversation(convID, msg)
	}

	// Pre-update snapshot: the increment decision below compares msg.Seq
	// against max_seq as it stood *before* this message, so the increment
	// can never double-count a message that also advances max_seq.
	prevMaxSeq := conv.MaxSeq

	conv.LatestMsg = latestMsgSummary(msg)
	conv.LatestMsgSendTime = maxInt64(msg.SendTime, msg.CreateTime)
	conv.MaxSeq = maxInt64(conv.MaxSeq, msg.Seq)

	if shouldIncrementUnread(msg, s.loginUserID, isNotification, prevMaxSeq) {
		conv.UnreadCount++
	}

	if err := s.store.UpsertConversation(conv); err != nil {
		return fmt.Errorf("upsert conversation %q: %w", convID, err)
	}

	listJSON, err := json.Marshal([]*model.Conversation{conv})
	if err != nil {
		return fmt.Errorf("marshal conversation event: %w", err)
	}
	cl := s.listeners.Conversation()
	if isNew {
		cl.OnNewConversation(string(listJSON))
	} else {
		cl.OnConversationChanged(string(listJSON))
	}

	total, err := s.store.TotalUnreadCount()
	if err != nil {
		return fmt.Errorf("total unread count: %w", err)
	}
	cl.OnTotalUnreadMessageCountChanged(int32(total))
	return nil
}

// shouldIncrementUnread implements spec §4.3 step 4's four-part condition.
func shouldIncrementUnread(msg *model.Message, loginUserID string, isNotification bool, prevMaxSeq int64) bool {
	if msg.SendID == loginUserID {
		return false
	}
	if isNotification {
		return false
	}
	wantsUnread := true
	if v, ok := msg.Options["unreadCount"]; ok {
		wantsUnread = v
	}
	if !wantsUnread {
		return false
	}
	return msg.Seq > prevMaxSeq
}

// synthesizeConversation builds a new LocalConversation row for a message
// whose conversation doesn't exist locally yet, inheriting session_type and
// send_id/group_id from the message, per spec §4.3.
func synthesizeConversation(convID string, msg *model.Message) *model.Conversation {
	c := &model.Conversation{
		ConversationID:   convID,
		ConversationType: model.ConversationType(msg.SessionType),
		GroupID:          msg.GroupID,
	}
	if msg.SessionType == model.SessionSingle {
		c.UserID = msg.RecvID
		if msg.SendID != "" {
			c.UserID = msg.SendID
		}
	}
	return c
}

// latestMsgSummary implements spec §4.3's latest-msg summary rule.
func latestMsgSummary(msg *model.Message) string {
	switch msg.ContentType {
	case model.ContentText:
		return textSummary(msg.Content)
	case model.ContentPicture:
		return "[图片]"
	case model.ContentVoice:
		return "[语音]"
	case model.ContentVideo:
		return "[视频]"
	case model.ContentFile:
		return "[文件]"
	case model.ContentAtText:
		return "[@消息]"
	case model.ContentLocation:
		return "[位置]"
	case model.ContentMerger:
		return "[聊天记录]"
	case model.ContentCard:
		return "[名片]"
	case model.ContentHasReadReceipt:
		return "[已读回执]"
	}
	if msg.ContentType.IsFriendRelation() {
		return "[好友通知]"
	}
	if msg.ContentType.IsNotification() {
		return "[群通知]"
	}
	return "[新消息]"
}

// textSummary implements the TEXT-specific branch of the summary rule: if
// the content decodes as JSON with a string "content" field, use that;
// else the raw text if non-empty; else the generic text fallback.
func textSummary(content string) string {
	if content == "" {
		return "[文本]"
	}
	var decoded struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &decoded); err == nil && decoded.Content != "" {
		return decoded.Content
	}
	return content
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
