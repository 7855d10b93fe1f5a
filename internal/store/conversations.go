package store

import (
	"database/sql"
	"fmt"

	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

// conversationColumns lists every local_conversations column, in the order
// UpsertConversation binds them and scanConversation reads them.
var conversationColumns = []string{
	"conversation_id", "conversation_type", "user_id", "group_id", "show_name",
	"face_url", "latest_msg", "latest_msg_send_time", "unread_count",
	"recv_msg_opt", "is_pinned", "is_private_chat", "burn_duration",
	"group_at_type", "is_not_in_group", "update_unread_count_time", "max_seq",
	"min_seq", "is_msg_destruct", "msg_destruct_time", "draft_text",
	"draft_text_time", "attached_info", "ex",
}

// GetConversation returns the conversation with the given ID, or
// (nil, nil) if absent.
func (s *Store) GetConversation(id string) (*model.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+conversationSelectList()+`
		FROM local_conversations WHERE conversation_id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %q: %w", id, err)
	}
	return c, nil
}

// GetAllConversations returns every locally-persisted conversation.
func (s *Store) GetAllConversations() ([]*model.Conversation, error) {
	rows, err := s.db.Query(`SELECT ` + conversationSelectList() + ` FROM local_conversations`)
	if err != nil {
		return nil, fmt.Errorf("get all conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertConversation inserts or replaces a conversation row.
func (s *Store) UpsertConversation(c *model.Conversation) error {
	_, err := s.db.Exec(`INSERT INTO local_conversations (`+conversationColumnList()+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			conversation_type=excluded.conversation_type,
			user_id=excluded.user_id,
			group_id=excluded.group_id,
			show_name=excluded.show_name,
			face_url=excluded.face_url,
			latest_msg=excluded.latest_msg,
			latest_msg_send_time=excluded.latest_msg_send_time,
			unread_count=excluded.unread_count,
			recv_msg_opt=excluded.recv_msg_opt,
			is_pinned=excluded.is_pinned,
			is_private_chat=excluded.is_private_chat,
			burn_duration=excluded.burn_duration,
			group_at_type=excluded.group_at_type,
			is_not_in_group=excluded.is_not_in_group,
			update_unread_count_time=excluded.update_unread_count_time,
			max_seq=excluded.max_seq,
			min_seq=excluded.min_seq,
			is_msg_destruct=excluded.is_msg_destruct,
			msg_destruct_time=excluded.msg_destruct_time,
			draft_text=excluded.draft_text,
			draft_text_time=excluded.draft_text_time,
			attached_info=excluded.attached_info,
			ex=excluded.ex`,
		c.ConversationID, c.ConversationType, c.UserID, c.GroupID, c.ShowName,
		c.FaceURL, c.LatestMsg, c.LatestMsgSendTime, c.UnreadCount,
		c.RecvMsgOpt, c.IsPinned, c.IsPrivateChat, c.BurnDuration,
		c.GroupAtType, c.IsNotInGroup, c.UpdateUnreadCountTime, c.MaxSeq,
		c.MinSeq, c.IsMsgDestruct, c.MsgDestructTime, c.DraftText,
		c.DraftTextTime, c.AttachedInfo, c.Ex,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %q: %w", c.ConversationID, err)
	}
	return nil
}

// DeleteConversation removes a conversation row. Returns no error if absent.
func (s *Store) DeleteConversation(id string) error {
	_, err := s.db.Exec(`DELETE FROM local_conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %q: %w", id, err)
	}
	return nil
}

// UpdateConversationUnreadAndMaxSeq updates only unread_count and max_seq,
// used by the unread-seq reconciliation subroutine (spec §4.3) so it never
// clobbers fields owned by the insert/update pass.
func (s *Store) UpdateConversationUnreadAndMaxSeq(id string, unread int32, maxSeq int64) error {
	_, err := s.db.Exec(`UPDATE local_conversations SET unread_count = ?, max_seq = ?
		WHERE conversation_id = ?`, unread, maxSeq, id)
	if err != nil {
		return fmt.Errorf("update unread/max_seq %q: %w", id, err)
	}
	return nil
}

// ZeroAllUnreadCounts resets unread_count to 0 across every local
// conversation, for Client.MarkAllConversationsAsRead (spec §13).
func (s *Store) ZeroAllUnreadCounts() error {
	_, err := s.db.Exec(`UPDATE local_conversations SET unread_count = 0`)
	if err != nil {
		return fmt.Errorf("zero all unread counts: %w", err)
	}
	return nil
}

// TotalUnreadCount sums unread_count across every local conversation, for
// the on_total_unread_message_count_changed invariant in spec §8.
func (s *Store) TotalUnreadCount() (int64, error) {
	var total int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM local_conversations`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total unread: %w", err)
	}
	return total, nil
}

// GetConversationListSplit implements spec §4.3's listing rule: filter out
// rows with latest_msg_send_time == 0, sort by (is_pinned DESC, max(
// latest_msg_send_time, draft_text_time) DESC), then slice [offset, offset+count).
func (s *Store) GetConversationListSplit(offset, count int) ([]*model.Conversation, error) {
	rows, err := s.db.Query(`SELECT ` + conversationSelectList() + `
		FROM local_conversations
		WHERE latest_msg_send_time != 0
		ORDER BY is_pinned DESC, MAX(latest_msg_send_time, draft_text_time) DESC
		LIMIT ? OFFSET ?`, count, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func conversationColumnList() string {
	out := ""
	for i, col := range conversationColumns {
		if i > 0 {
			out += ","
		}
		out += col
	}
	return out
}

func conversationSelectList() string {
	return conversationColumnList()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(
		&c.ConversationID, &c.ConversationType, &c.UserID, &c.GroupID, &c.ShowName,
		&c.FaceURL, &c.LatestMsg, &c.LatestMsgSendTime, &c.UnreadCount,
		&c.RecvMsgOpt, &c.IsPinned, &c.IsPrivateChat, &c.BurnDuration,
		&c.GroupAtType, &c.IsNotInGroup, &c.UpdateUnreadCountTime, &c.MaxSeq,
		&c.MinSeq, &c.IsMsgDestruct, &c.MsgDestructTime, &c.DraftText,
		&c.DraftTextTime, &c.AttachedInfo, &c.Ex,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
