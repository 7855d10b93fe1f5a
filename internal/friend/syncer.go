// Package friend implements the friend version-vector syncer described in
// spec §4.4: structurally parallel to the conversation syncer, without
// unread/seq reconciliation, plus a black-list and friend-apply-list
// full-fetch after every incremental pass.
package friend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xiaohei189/openim-sdk-core/internal/httpclient"
	"github.com/xiaohei189/openim-sdk-core/internal/listener"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/store"
)

// idHashUnused is sent as the fixed idHash parameter the
// get_full_friend_user_ids endpoint accepts but this client never uses,
// per spec §4.4.
const idHashUnused = 0

// Syncer owns one user's friend-list replica.
type Syncer struct {
	passMu sync.Mutex

	store       *store.Store
	api         *httpclient.Client
	listeners   *listener.Registry
	loginUserID string
}

// New constructs a friend Syncer for loginUserID.
func New(st *store.Store, api *httpclient.Client, listeners *listener.Registry, loginUserID string) *Syncer {
	return &Syncer{store: st, api: api, listeners: listeners, loginUserID: loginUserID}
}

// IncrSync runs the decision tree of spec §4.4 and, regardless of path,
// refreshes the black-list and friend-apply-list.
func (s *Syncer) IncrSync(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if err := s.runSyncDecisionTree(ctx); err != nil {
		return err
	}
	return s.refreshAuxLists(ctx)
}

func (s *Syncer) runSyncDecisionTree(ctx context.Context) error {
	versionRow, err := s.store.GetVersion(model.TableFriends, s.loginUserID)
	if err != nil {
		return fmt.Errorf("load version row: %w", err)
	}

	// Step 1: no local version.
	if versionRow == nil {
		idsResp, err := s.api.GetFullFriendUserIDs(ctx, httpclient.GetFullFriendUserIDsRequest{UserID: s.loginUserID, IDHash: idHashUnused})
		if err != nil {
			return fmt.Errorf("get full friend user ids: %w", err)
		}
		localFriends, err := s.store.GetAllFriends(s.loginUserID)
		if err != nil {
			return fmt.Errorf("load local friends: %w", err)
		}
		if sameIDSet(localFriends, idsResp.UserIDs) {
			return s.store.SetVersion(model.TableFriends, s.loginUserID, idsResp.Version, idsResp.VersionID)
		}
		return s.fullSync(ctx, idsResp.Version, idsResp.VersionID, idsResp.UserIDs)
	}

	// Step 2: incremental call.
	incrResp, err := s.api.GetIncrementalFriends(ctx, httpclient.GetIncrementalFriendsRequest{
		UserID:    s.loginUserID,
		Version:   versionRow.Version,
		VersionID: versionRow.VersionID,
	})
	if err != nil {
		return fmt.Errorf("get incremental friends: %w", err)
	}
	if incrResp.Full {
		idsResp, err := s.api.GetFullFriendUserIDs(ctx, httpclient.GetFullFriendUserIDsRequest{UserID: s.loginUserID, IDHash: idHashUnused})
		if err != nil {
			return fmt.Errorf("get full friend user ids: %w", err)
		}
		return s.fullSync(ctx, idsResp.Version, idsResp.VersionID, idsResp.UserIDs)
	}

	// Step 3: apply insert ∪ update via upsert, delete via hard delete.
	changed, err := s.applyUpsert(append(incrResp.Insert, incrResp.Update...))
	if err != nil {
		return fmt.Errorf("apply friend upsert: %w", err)
	}
	for _, f := range incrResp.Delete {
		if err := s.store.DeleteFriend(s.loginUserID, f.FriendUserID); err != nil {
			return fmt.Errorf("delete friend %q: %w", f.FriendUserID, err)
		}
		changed = append(changed, f)
	}

	// Step 4: persist new version.
	if err := s.store.SetVersion(model.TableFriends, s.loginUserID, incrResp.Version, incrResp.VersionID); err != nil {
		return fmt.Errorf("persist friend version: %w", err)
	}

	// Step 5: fire on_friend_list_changed for the union, if any.
	if len(changed) > 0 {
		payload, err := json.Marshal(changed)
		if err != nil {
			return fmt.Errorf("marshal friend list changed: %w", err)
		}
		s.listeners.Friend().OnFriendListChanged(string(payload))
	}
	return nil
}

// fullSync fetches the authoritative friend list, upserts it, deletes any
// local friend absent from the server ID set, and persists the version.
func (s *Syncer) fullSync(ctx context.Context, version uint64, versionID string, serverIDs []string) error {
	listResp, err := s.api.GetFriendList(ctx, s.loginUserID)
	if err != nil {
		return fmt.Errorf("get friend list: %w", err)
	}

	changed, err := s.applyUpsert(listResp.FriendsInfo)
	if err != nil {
		return fmt.Errorf("apply full friend upsert: %w", err)
	}

	serverSet := make(map[string]struct{}, len(serverIDs))
	for _, id := range serverIDs {
		serverSet[id] = struct{}{}
	}
	localFriends, err := s.store.GetAllFriends(s.loginUserID)
	if err != nil {
		return fmt.Errorf("reload local friends: %w", err)
	}
	for _, f := range localFriends {
		if _, ok := serverSet[f.FriendUserID]; !ok {
			if err := s.store.DeleteFriend(s.loginUserID, f.FriendUserID); err != nil {
				return fmt.Errorf("delete stale friend %q: %w", f.FriendUserID, err)
			}
			changed = append(changed, f)
		}
	}

	if err := s.store.SetVersion(model.TableFriends, s.loginUserID, version, versionID); err != nil {
		return fmt.Errorf("persist full-sync friend version: %w", err)
	}

	if len(changed) > 0 {
		payload, err := json.Marshal(changed)
		if err != nil {
			return fmt.Errorf("marshal friend list changed: %w", err)
		}
		s.listeners.Friend().OnFriendListChanged(string(payload))
	}
	return nil
}

// friendsDiffer compares the mutable fields spec §4.4's upsert comparison
// calls out.
func friendsDiffer(local, server *model.Friend) bool {
	return local.Remark != server.Remark ||
		local.AddSource != server.AddSource ||
		local.OperatorUserID != server.OperatorUserID ||
		local.Nickname != server.Nickname ||
		local.FaceURL != server.FaceURL ||
		local.Ex != server.Ex ||
		local.AttachedInfo != server.AttachedInfo ||
		local.IsPinned != server.IsPinned
}

func (s *Syncer) applyUpsert(serverFriends []*model.Friend) ([]*model.Friend, error) {
	var changed []*model.Friend
	for _, sf := range serverFriends {
		sf.OwnerUserID = s.loginUserID
		local, err := s.store.GetFriend(s.loginUserID, sf.FriendUserID)
		if err != nil {
			return nil, fmt.Errorf("get local friend %q: %w", sf.FriendUserID, err)
		}
		if local != nil && !friendsDiffer(local, sf) {
			continue
		}
		if err := s.store.UpsertFriend(sf); err != nil {
			return nil, fmt.Errorf("upsert friend %q: %w", sf.FriendUserID, err)
		}
		changed = append(changed, sf)
	}
	return changed, nil
}

func sameIDSet(local []*model.Friend, serverIDs []string) bool {
	if len(local) != len(serverIDs) {
		return false
	}
	set := make(map[string]struct{}, len(local))
	for _, f := range local {
		set[f.FriendUserID] = struct{}{}
	}
	for _, id := range serverIDs {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// refreshAuxLists always refreshes the black-list and friend-request-list
// via full fetches, per spec §4.4's "additionally performs a separate
// full-fetch" requirement.
func (s *Syncer) refreshAuxLists(ctx context.Context) error {
	blackResp, err := s.api.GetBlackList(ctx, s.loginUserID)
	if err != nil {
		return fmt.Errorf("get black list: %w", err)
	}
	blackJSON, err := json.Marshal(blackResp.Blacks)
	if err != nil {
		return fmt.Errorf("marshal black list: %w", err)
	}
	s.listeners.Friend().OnBlackListChanged(string(blackJSON))

	applyResp, err := s.api.GetFriendApplyList(ctx, s.loginUserID)
	if err != nil {
		return fmt.Errorf("get friend apply list: %w", err)
	}
	applyJSON, err := json.Marshal(applyResp.FriendRequests)
	if err != nil {
		return fmt.Errorf("marshal friend apply list: %w", err)
	}
	s.listeners.Friend().OnFriendRequestListChanged(string(applyJSON))
	return nil
}
