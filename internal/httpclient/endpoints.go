package httpclient

import (
	"context"

	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

// LoginRequest/LoginResponse back POST /account/login.
type LoginRequest struct {
	AreaCode    string `json:"areaCode"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	Platform    int32  `json:"platform"`
}

type LoginResponse struct {
	IMToken   string `json:"imToken"`
	ChatToken string `json:"chatToken"`
	UserID    string `json:"userID"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Post(ctx, "/account/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetIncrementalConversationsRequest/Response back
// POST /conversation/get_incremental_conversations, per spec §4.3.
type GetIncrementalConversationsRequest struct {
	UserID    string `json:"userID"`
	Version   uint64 `json:"version"`
	VersionID string `json:"versionID"`
}

type GetIncrementalConversationsResponse struct {
	Full      bool                  `json:"full"`
	Version   uint64                `json:"version"`
	VersionID string                `json:"versionID"`
	Insert    []*model.Conversation `json:"insert"`
	Update    []*model.Conversation `json:"update"`
	Delete    []*model.Conversation `json:"delete"`
}

func (c *Client) GetIncrementalConversations(ctx context.Context, req GetIncrementalConversationsRequest) (*GetIncrementalConversationsResponse, error) {
	var resp GetIncrementalConversationsResponse
	if err := c.Post(ctx, "/conversation/get_incremental_conversations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type GetAllConversationsRequest struct {
	OwnerUserID string `json:"ownerUserID"`
}

type GetAllConversationsResponse struct {
	Conversations []*model.Conversation `json:"conversations"`
}

func (c *Client) GetAllConversations(ctx context.Context, req GetAllConversationsRequest) (*GetAllConversationsResponse, error) {
	var resp GetAllConversationsResponse
	if err := c.Post(ctx, "/conversation/get_all_conversations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type GetFullConversationIDsRequest struct {
	UserID string `json:"userID"`
}

type GetFullConversationIDsResponse struct {
	Version         uint64   `json:"version"`
	VersionID       string   `json:"versionID"`
	ConversationIDs []string `json:"conversationIDs"`
}

func (c *Client) GetFullConversationIDs(ctx context.Context, req GetFullConversationIDsRequest) (*GetFullConversationIDsResponse, error) {
	var resp GetFullConversationIDsResponse
	if err := c.Post(ctx, "/conversation/get_full_conversation_ids", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SeqData is one entry of the has-read/max-seq reconciliation map, per spec §4.3.
type SeqData struct {
	MaxSeq     int64 `json:"maxSeq"`
	HasReadSeq int64 `json:"hasReadSeq"`
	MaxSeqTime int64 `json:"maxSeqTime"`
}

type GetConversationsHasReadAndMaxSeqRequest struct {
	UserID string `json:"userID"`
}

type GetConversationsHasReadAndMaxSeqResponse struct {
	Seqs map[string]SeqData `json:"seqs"`
}

func (c *Client) GetConversationsHasReadAndMaxSeq(ctx context.Context, req GetConversationsHasReadAndMaxSeqRequest) (*GetConversationsHasReadAndMaxSeqResponse, error) {
	var resp GetConversationsHasReadAndMaxSeqResponse
	if err := c.Post(ctx, "/msg/get_conversations_has_read_and_max_seq", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type MarkConversationAsReadRequest struct {
	ConversationID string  `json:"conversationID"`
	UserID         string  `json:"userID"`
	HasReadSeq     int64   `json:"hasReadSeq"`
	Seqs           []int64 `json:"seqs"`
}

func (c *Client) MarkConversationAsRead(ctx context.Context, req MarkConversationAsReadRequest) error {
	return c.Post(ctx, "/msg/mark_conversation_as_read", req, nil)
}

type MarkAllConversationAsReadRequest struct {
	UserID string `json:"userID"`
}

func (c *Client) MarkAllConversationAsRead(ctx context.Context, req MarkAllConversationAsReadRequest) error {
	return c.Post(ctx, "/msg/mark_all_conversation_as_read", req, nil)
}

type RevokeMsgRequest struct {
	ConversationID string `json:"conversationID"`
	Seq            int64  `json:"seq"`
	UserID         string `json:"userID"`
}

func (c *Client) RevokeMsg(ctx context.Context, req RevokeMsgRequest) error {
	return c.Post(ctx, "/msg/revoke_msg", req, nil)
}

type DeleteMsgsRequest struct {
	ConversationID string  `json:"conversationID"`
	Seqs           []int64 `json:"seqs"`
	UserID         string  `json:"userID"`
}

func (c *Client) DeleteMsgs(ctx context.Context, req DeleteMsgsRequest) error {
	return c.Post(ctx, "/msg/delete_msgs", req, nil)
}

type DeleteMsgRequest struct {
	ConversationID string `json:"conversationID"`
	ClientMsgID    string `json:"clientMsgID"`
	UserID         string `json:"userID"`
}

func (c *Client) DeleteMsg(ctx context.Context, req DeleteMsgRequest) error {
	return c.Post(ctx, "/msg/delete_msg", req, nil)
}

type ClearConversationMsgRequest struct {
	ConversationIDs []string `json:"conversationIDs"`
	UserID          string   `json:"userID"`
}

func (c *Client) ClearConversationMsg(ctx context.Context, req ClearConversationMsgRequest) error {
	return c.Post(ctx, "/msg/clear_conversation_msg", req, nil)
}

type TypingStatusUpdateRequest struct {
	RecvID string `json:"recvID"`
	MsgTip string `json:"msgTip"`
	SendID string `json:"sendID"`
}

func (c *Client) TypingStatusUpdate(ctx context.Context, req TypingStatusUpdateRequest) error {
	return c.Post(ctx, "/msg/typing_status_update", req, nil)
}

// GetIncrementalFriendsRequest/Response back
// POST /friend/get_incremental_friends, per spec §4.4.
type GetIncrementalFriendsRequest struct {
	UserID    string `json:"userID"`
	Version   uint64 `json:"version"`
	VersionID string `json:"versionID"`
}

type GetIncrementalFriendsResponse struct {
	Full      bool            `json:"full"`
	Version   uint64          `json:"version"`
	VersionID string          `json:"versionID"`
	Insert    []*model.Friend `json:"insert"`
	Update    []*model.Friend `json:"update"`
	Delete    []*model.Friend `json:"delete"`
}

func (c *Client) GetIncrementalFriends(ctx context.Context, req GetIncrementalFriendsRequest) (*GetIncrementalFriendsResponse, error) {
	var resp GetIncrementalFriendsResponse
	if err := c.Post(ctx, "/friend/get_incremental_friends", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetFullFriendUserIDsRequest carries idHash, per spec §6/§4.4: unused by
// this client, always sent as 0.
type GetFullFriendUserIDsRequest struct {
	UserID string `json:"userID"`
	IDHash int64  `json:"idHash"`
}

type GetFullFriendUserIDsResponse struct {
	Version   uint64   `json:"version"`
	VersionID string   `json:"versionID"`
	UserIDs   []string `json:"userIDs"`
}

func (c *Client) GetFullFriendUserIDs(ctx context.Context, req GetFullFriendUserIDsRequest) (*GetFullFriendUserIDsResponse, error) {
	var resp GetFullFriendUserIDsResponse
	if err := c.Post(ctx, "/friend/get_full_friend_user_ids", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pagination mirrors the paged list request shape shared by the three
// friend-side full-fetch endpoints; the client always requests a single
// large page, per spec §4.4.
type Pagination struct {
	PageNumber int32 `json:"pageNumber"`
	ShowNumber int32 `json:"showNumber"`
}

// largePage is the single-page request this client always sends, since it
// reconciles the full set locally rather than paging through the UI.
var largePage = Pagination{PageNumber: 1, ShowNumber: 10000}

type GetFriendListRequest struct {
	UserID     string     `json:"userID"`
	Pagination Pagination `json:"pagination"`
}

type GetFriendListResponse struct {
	FriendsInfo []*model.Friend `json:"friendsInfo"`
}

func (c *Client) GetFriendList(ctx context.Context, userID string) (*GetFriendListResponse, error) {
	var resp GetFriendListResponse
	req := GetFriendListRequest{UserID: userID, Pagination: largePage}
	if err := c.Post(ctx, "/friend/get_friend_list", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BlackInfo is one entry of a full black-list fetch.
type BlackInfo struct {
	OwnerUserID    string `json:"ownerUserID"`
	BlockUserID    string `json:"blockUserID"`
	Nickname       string `json:"nickname"`
	FaceURL        string `json:"faceURL"`
	CreateTime     int64  `json:"createTime"`
	Ex             string `json:"ex"`
}

type GetBlackListRequest struct {
	UserID     string     `json:"userID"`
	Pagination Pagination `json:"pagination"`
}

type GetBlackListResponse struct {
	Blacks []*BlackInfo `json:"blacks"`
}

func (c *Client) GetBlackList(ctx context.Context, userID string) (*GetBlackListResponse, error) {
	var resp GetBlackListResponse
	req := GetBlackListRequest{UserID: userID, Pagination: largePage}
	if err := c.Post(ctx, "/friend/get_black_list", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FriendRequest is one entry of a full friend-apply-list fetch.
type FriendRequest struct {
	FromUserID   string `json:"fromUserID"`
	ToUserID     string `json:"toUserID"`
	HandleResult int32  `json:"handleResult"`
	ReqMsg       string `json:"reqMsg"`
	CreateTime   int64  `json:"createTime"`
	HandlerUserID string `json:"handlerUserID"`
	HandleMsg    string `json:"handleMsg"`
	HandleTime   int64  `json:"handleTime"`
	Ex           string `json:"ex"`
}

type GetFriendApplyListRequest struct {
	UserID     string     `json:"userID"`
	Pagination Pagination `json:"pagination"`
}

type GetFriendApplyListResponse struct {
	FriendRequests []*FriendRequest `json:"friendRequests"`
}

func (c *Client) GetFriendApplyList(ctx context.Context, userID string) (*GetFriendApplyListResponse, error) {
	var resp GetFriendApplyListResponse
	req := GetFriendApplyListRequest{UserID: userID, Pagination: largePage}
	if err := c.Post(ctx, "/friend/get_friend_apply_list", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
