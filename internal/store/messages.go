package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

// searchResultLimit bounds search_local_messages per spec §4.5/§8.
const searchResultLimit = 200

// ensureMessageTable creates the per-conversation message table on first
// access, per spec §4.5's "created lazily" requirement. Serialized by
// tableMu so two concurrent first-accesses for the same conversation can't
// race on CREATE TABLE.
func (s *Store) ensureMessageTable(conversationID string) (string, error) {
	table := messageTableName(conversationID)

	s.tableMu.Lock()
	defer s.tableMu.Unlock()

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		client_msg_id      TEXT PRIMARY KEY,
		server_msg_id      TEXT NOT NULL DEFAULT '',
		conversation_id    TEXT NOT NULL,
		send_id            TEXT NOT NULL DEFAULT '',
		recv_id            TEXT NOT NULL DEFAULT '',
		group_id           TEXT NOT NULL DEFAULT '',
		sender_platform_id INTEGER NOT NULL DEFAULT 0,
		session_type       INTEGER NOT NULL DEFAULT 0,
		msg_from           INTEGER NOT NULL DEFAULT 0,
		content_type       INTEGER NOT NULL DEFAULT 0,
		content            TEXT NOT NULL DEFAULT '',
		seq                INTEGER NOT NULL DEFAULT 0,
		send_time          INTEGER NOT NULL DEFAULT 0,
		create_time        INTEGER NOT NULL DEFAULT 0,
		status             INTEGER NOT NULL DEFAULT 0,
		is_read            INTEGER NOT NULL DEFAULT 0,
		attached_info      TEXT NOT NULL DEFAULT '',
		ex                 TEXT NOT NULL DEFAULT '',
		local_ex           TEXT NOT NULL DEFAULT ''
	)`, table)
	if _, err := s.db.Exec(ddl); err != nil {
		return "", fmt.Errorf("create message table %q: %w", table, err)
	}
	for _, idx := range [...]string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_seq ON %s(seq)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_send_time ON %s(send_time)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_content_type ON %s(content_type)`, table, table),
	} {
		if _, err := s.db.Exec(idx); err != nil {
			return "", fmt.Errorf("create index on %q: %w", table, err)
		}
	}
	return table, nil
}

// InsertMessage upserts msg by client_msg_id into its conversation's table.
func (s *Store) InsertMessage(conversationID string, msg *model.Message) error {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s
		(client_msg_id, server_msg_id, conversation_id, send_id, recv_id, group_id,
		 sender_platform_id, session_type, msg_from, content_type, content, seq,
		 send_time, create_time, status, is_read, attached_info, ex, local_ex)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(client_msg_id) DO UPDATE SET
			server_msg_id=excluded.server_msg_id,
			send_id=excluded.send_id,
			recv_id=excluded.recv_id,
			group_id=excluded.group_id,
			sender_platform_id=excluded.sender_platform_id,
			session_type=excluded.session_type,
			msg_from=excluded.msg_from,
			content_type=excluded.content_type,
			content=excluded.content,
			seq=excluded.seq,
			send_time=excluded.send_time,
			create_time=excluded.create_time,
			status=excluded.status,
			is_read=excluded.is_read,
			attached_info=excluded.attached_info,
			ex=excluded.ex,
			local_ex=excluded.local_ex`, table)
	_, err = s.db.Exec(q, msg.ClientMsgID, msg.ServerMsgID, conversationID, msg.SendID,
		msg.RecvID, msg.GroupID, msg.SenderPlatformID, msg.SessionType, msg.MsgFrom,
		msg.ContentType, msg.Content, msg.Seq, msg.SendTime, msg.CreateTime,
		msg.Status, msg.IsRead, msg.AttachedInfo, msg.Ex, msg.LocalEx)
	if err != nil {
		return fmt.Errorf("insert message %q into %q: %w", msg.ClientMsgID, table, err)
	}
	return nil
}

var messageSelectColumns = `client_msg_id, server_msg_id, conversation_id, send_id, recv_id,
	group_id, sender_platform_id, session_type, msg_from, content_type, content, seq,
	send_time, create_time, status, is_read, attached_info, ex, local_ex`

func scanMessage(row scanner) (*model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ClientMsgID, &m.ServerMsgID, &m.ConversationID, &m.SendID, &m.RecvID,
		&m.GroupID, &m.SenderPlatformID, &m.SessionType, &m.MsgFrom, &m.ContentType, &m.Content,
		&m.Seq, &m.SendTime, &m.CreateTime, &m.Status, &m.IsRead, &m.AttachedInfo, &m.Ex, &m.LocalEx)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByClientMsgID returns one message, or (nil, nil) if absent.
func (s *Store) GetMessageByClientMsgID(conversationID, clientMsgID string) (*model.Message, error) {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM %s WHERE client_msg_id = ?`, messageSelectColumns, table), clientMsgID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %q: %w", clientMsgID, err)
	}
	return m, nil
}

// GetMessagesBySeq returns messages matching any of seqs, send_time desc.
func (s *Store) GetMessagesBySeq(conversationID string, seqs []int64) ([]*model.Message, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return nil, err
	}
	placeholders, args := intPlaceholders(seqs)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE seq IN (%s) ORDER BY send_time DESC`,
		messageSelectColumns, table, placeholders)
	return s.queryMessages(q, args...)
}

// GetMessagesByClientMsgIDs returns messages matching any of ids, send_time desc.
func (s *Store) GetMessagesByClientMsgIDs(conversationID string, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return nil, err
	}
	placeholders, args := stringPlaceholders(ids)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE client_msg_id IN (%s) ORDER BY send_time DESC`,
		messageSelectColumns, table, placeholders)
	return s.queryMessages(q, args...)
}

// DeleteMessageByClientMsgID removes one message.
func (s *Store) DeleteMessageByClientMsgID(conversationID, clientMsgID string) error {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE client_msg_id = ?`, table), clientMsgID)
	if err != nil {
		return fmt.Errorf("delete message %q: %w", clientMsgID, err)
	}
	return nil
}

// DeleteMessagesBySeqs removes every message matching one of seqs, the
// bulk counterpart to DeleteMessageByClientMsgID used by delete_messages.
func (s *Store) DeleteMessagesBySeqs(conversationID string, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return err
	}
	placeholders, args := intPlaceholders(seqs)
	q := fmt.Sprintf(`DELETE FROM %s WHERE seq IN (%s)`, table, placeholders)
	if _, err := s.db.Exec(q, args...); err != nil {
		return fmt.Errorf("delete messages by seqs: %w", err)
	}
	return nil
}

// DeleteConversationMessages drops the whole per-conversation table,
// per spec §4.5's "DROP TABLE as O(1) conversation delete" design.
func (s *Store) DeleteConversationMessages(conversationID string) error {
	table := messageTableName(conversationID)
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	_, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table))
	if err != nil {
		return fmt.Errorf("drop message table %q: %w", table, err)
	}
	return nil
}

// MarkAsReadByClientMsgIDs marks the given messages read, excluding any sent
// by loginUserID, per spec §4.5. Returns the number of rows updated.
func (s *Store) MarkAsReadByClientMsgIDs(conversationID, loginUserID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return 0, err
	}
	placeholders, args := stringPlaceholders(ids)
	q := fmt.Sprintf(`UPDATE %s SET is_read = 1 WHERE send_id != ? AND client_msg_id IN (%s)`, table, placeholders)
	res, err := s.db.Exec(q, append([]any{loginUserID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("mark as read by id: %w", err)
	}
	return res.RowsAffected()
}

// MarkAsReadBySeqs marks the given messages read by seq, excluding any sent
// by loginUserID, per spec §4.5 and §8's "mark_as_read_by_seqs([]) is a
// no-op returning 0" boundary case.
func (s *Store) MarkAsReadBySeqs(conversationID, loginUserID string, seqs []int64) (int64, error) {
	if len(seqs) == 0 {
		return 0, nil
	}
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return 0, err
	}
	placeholders, args := intPlaceholders(seqs)
	q := fmt.Sprintf(`UPDATE %s SET is_read = 1 WHERE send_id != ? AND seq IN (%s)`, table, placeholders)
	res, err := s.db.Exec(q, append([]any{loginUserID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("mark as read by seq: %w", err)
	}
	return res.RowsAffected()
}

// GetUnreadByConversation returns unread messages not sent by loginUserID,
// send_time desc.
func (s *Store) GetUnreadByConversation(conversationID, loginUserID string) ([]*model.Message, error) {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE is_read = 0 AND send_id != ? ORDER BY send_time DESC`,
		messageSelectColumns, table)
	return s.queryMessages(q, loginUserID)
}

// MaxSeq returns the highest seq recorded for the conversation.
func (s *Store) MaxSeq(conversationID string) (int64, error) {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return 0, err
	}
	var max sql.NullInt64
	if err := s.db.QueryRow(fmt.Sprintf(`SELECT MAX(seq) FROM %s`, table)).Scan(&max); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max.Int64, nil
}

// PeerMaxSeq returns the highest seq among messages not sent by loginUserID.
func (s *Store) PeerMaxSeq(conversationID, loginUserID string) (int64, error) {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return 0, err
	}
	var max sql.NullInt64
	q := fmt.Sprintf(`SELECT MAX(seq) FROM %s WHERE send_id != ?`, table)
	if err := s.db.QueryRow(q, loginUserID).Scan(&max); err != nil {
		return 0, fmt.Errorf("peer max seq: %w", err)
	}
	return max.Int64, nil
}

// UpdateLocalEx updates the client-only local_ex extension field.
func (s *Store) UpdateLocalEx(conversationID, clientMsgID, localEx string) error {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(`UPDATE %s SET local_ex = ? WHERE client_msg_id = ?`, table), localEx, clientMsgID)
	if err != nil {
		return fmt.Errorf("update local_ex %q: %w", clientMsgID, err)
	}
	return nil
}

// SearchLocalMessages implements spec §4.5's bounded keyword search: content
// LIKE '%keyword%', optionally filtered to contentTypes and a time range, at
// most searchResultLimit rows, send_time desc.
func (s *Store) SearchLocalMessages(conversationID, keyword string, contentTypes []model.ContentType, timeBegin, timeEnd int64) ([]*model.Message, error) {
	table, err := s.ensureMessageTable(conversationID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s WHERE content LIKE ?`, messageSelectColumns, table)
	args := []any{"%" + keyword + "%"}

	if len(contentTypes) > 0 {
		placeholders, ctArgs := contentTypePlaceholders(contentTypes)
		sb.WriteString(fmt.Sprintf(` AND content_type IN (%s)`, placeholders))
		args = append(args, ctArgs...)
	}
	if timeBegin > 0 {
		sb.WriteString(` AND send_time >= ?`)
		args = append(args, timeBegin)
	}
	if timeEnd > 0 {
		sb.WriteString(` AND send_time <= ?`)
		args = append(args, timeEnd)
	}
	sb.WriteString(` ORDER BY send_time DESC LIMIT ?`)
	args = append(args, searchResultLimit)

	return s.queryMessages(sb.String(), args...)
}

func (s *Store) queryMessages(q string, args ...any) ([]*model.Message, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func intPlaceholders[T ~int64 | ~int32](vals []T) (string, []any) {
	ph := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		ph[i] = "?"
		args[i] = int64(v)
	}
	return strings.Join(ph, ","), args
}

func stringPlaceholders(vals []string) (string, []any) {
	ph := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		ph[i] = "?"
		args[i] = v
	}
	return strings.Join(ph, ","), args
}

func contentTypePlaceholders(vals []model.ContentType) (string, []any) {
	ph := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		ph[i] = "?"
		args[i] = int32(v)
	}
	return strings.Join(ph, ","), args
}
