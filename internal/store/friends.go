package store

import (
	"database/sql"
	"fmt"

	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

// GetFriend returns one friend row, or (nil, nil) if absent.
func (s *Store) GetFriend(ownerUserID, friendUserID string) (*model.Friend, error) {
	row := s.db.QueryRow(`SELECT owner_user_id, friend_user_id, remark, nickname,
		face_url, add_source, operator_user_id, create_time, ex, attached_info, is_pinned
		FROM local_friends WHERE owner_user_id = ? AND friend_user_id = ?`, ownerUserID, friendUserID)
	f, err := scanFriend(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get friend %q/%q: %w", ownerUserID, friendUserID, err)
	}
	return f, nil
}

// GetAllFriends returns every locally-persisted friend of ownerUserID.
func (s *Store) GetAllFriends(ownerUserID string) ([]*model.Friend, error) {
	rows, err := s.db.Query(`SELECT owner_user_id, friend_user_id, remark, nickname,
		face_url, add_source, operator_user_id, create_time, ex, attached_info, is_pinned
		FROM local_friends WHERE owner_user_id = ?`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("get all friends: %w", err)
	}
	defer rows.Close()

	var out []*model.Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertFriend inserts or replaces a friend row.
func (s *Store) UpsertFriend(f *model.Friend) error {
	_, err := s.db.Exec(`INSERT INTO local_friends
		(owner_user_id, friend_user_id, remark, nickname, face_url, add_source,
		 operator_user_id, create_time, ex, attached_info, is_pinned)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(owner_user_id, friend_user_id) DO UPDATE SET
			remark=excluded.remark,
			nickname=excluded.nickname,
			face_url=excluded.face_url,
			add_source=excluded.add_source,
			operator_user_id=excluded.operator_user_id,
			create_time=excluded.create_time,
			ex=excluded.ex,
			attached_info=excluded.attached_info,
			is_pinned=excluded.is_pinned`,
		f.OwnerUserID, f.FriendUserID, f.Remark, f.Nickname, f.FaceURL, f.AddSource,
		f.OperatorUserID, f.CreateTime, f.Ex, f.AttachedInfo, f.IsPinned,
	)
	if err != nil {
		return fmt.Errorf("upsert friend %q/%q: %w", f.OwnerUserID, f.FriendUserID, err)
	}
	return nil
}

// DeleteFriend removes a friend row. Returns no error if absent.
func (s *Store) DeleteFriend(ownerUserID, friendUserID string) error {
	_, err := s.db.Exec(`DELETE FROM local_friends WHERE owner_user_id = ? AND friend_user_id = ?`,
		ownerUserID, friendUserID)
	if err != nil {
		return fmt.Errorf("delete friend %q/%q: %w", ownerUserID, friendUserID, err)
	}
	return nil
}

func scanFriend(row scanner) (*model.Friend, error) {
	var f model.Friend
	err := row.Scan(&f.OwnerUserID, &f.FriendUserID, &f.Remark, &f.Nickname,
		&f.FaceURL, &f.AddSource, &f.OperatorUserID, &f.CreateTime, &f.Ex,
		&f.AttachedInfo, &f.IsPinned)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
