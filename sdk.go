// Package openim is the SDK's client facade: it owns the transport writer,
// the shared store and HTTP client, the conversation and friend syncers, and
// the message sender, and wires them
// together the way server/main.go wires the teacher's room, store, and API
// server — open store, configure components, wire callbacks, start
// background goroutines.
package openim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xiaohei189/openim-sdk-core/internal/conversation"
	"github.com/xiaohei189/openim-sdk-core/internal/dedup"
	"github.com/xiaohei189/openim-sdk-core/internal/dispatcher"
	"github.com/xiaohei189/openim-sdk-core/internal/friend"
	"github.com/xiaohei189/openim-sdk-core/internal/httpclient"
	"github.com/xiaohei189/openim-sdk-core/internal/listener"
	"github.com/xiaohei189/openim-sdk-core/internal/message"
	"github.com/xiaohei189/openim-sdk-core/internal/model"
	"github.com/xiaohei189/openim-sdk-core/internal/store"
	"github.com/xiaohei189/openim-sdk-core/internal/transport"
)

// Client is the SDK's entry point: one instance per logged-in user. The
// facade exclusively owns the transport writer, the conversation and friend
// syncers, and the message sender, per spec §3's ownership rule; everything
// else (DAO handles, the HTTP client) is shared underneath it.
type Client struct {
	cfg Config

	store     *store.Store
	api       *httpclient.Client
	session   *transport.Session
	listeners *listener.Registry

	convSyncer   *conversation.Syncer
	friendSyncer *friend.Syncer
	sender       *message.Sender
	dispatcher   *dispatcher.Dispatcher

	mu          sync.Mutex
	loginUserID string
	token       string
	cancelBG    context.CancelFunc
}

// New opens the local store and constructs a Client. The returned Client is
// not yet connected; call Connect once login credentials are available.
func New(cfg Config) (*Client, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("openim: open store: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		store:     st,
		api:       httpclient.New(cfg.HTTPBaseURL),
		session:   transport.New(),
		listeners: listener.NewRegistry(),
	}
	return c, nil
}

// Login exchanges credentials for a token via POST /account/login, per
// spec §6, and primes the client to Connect with the returned identity.
func (c *Client) Login(ctx context.Context, areaCode, phoneNumber, password string) (*httpclient.LoginResponse, error) {
	resp, err := c.api.Login(ctx, httpclient.LoginRequest{
		AreaCode:    areaCode,
		PhoneNumber: phoneNumber,
		Password:    password,
		Platform:    c.cfg.PlatformID,
	})
	if err != nil {
		return nil, fmt.Errorf("openim: login: %w", err)
	}
	return resp, nil
}

// Connect opens the duplex transport session for loginUserID/token, wires
// the dispatcher and syncers, runs the initial conversation+friend sync in
// parallel via an errgroup (propagating the first fatal error), and starts
// the background store optimizer. It returns once the handshake and initial
// sync both complete or the first of them fails.
func (c *Client) Connect(ctx context.Context, loginUserID, token string) error {
	c.mu.Lock()
	c.loginUserID = loginUserID
	c.token = token
	c.api.SetToken(token)
	c.mu.Unlock()

	c.convSyncer = conversation.New(c.store, c.api, c.listeners, loginUserID)
	c.friendSyncer = friend.New(c.store, c.api, c.listeners, loginUserID)
	c.sender = message.NewSender(c.store, c.session, c.api, loginUserID, token)

	guard := dedup.New(c.cfg.DedupCapacity)
	c.dispatcher = dispatcher.New(guard, c.convSyncer, c.friendSyncer, c.sender, c.listeners)
	c.dispatcher.Attach(c.session)

	if err := c.session.Connect(ctx, c.cfg.WSBaseURL, transport.Options{
		Token:        token,
		SendID:       loginUserID,
		PlatformID:   c.cfg.PlatformID,
		Compression:  c.cfg.Compression,
		IsBackground: c.cfg.IsBackground,
		IsMsgResp:    c.cfg.IsMsgResp,
		SDKType:      c.cfg.SDKType,
	}); err != nil {
		return fmt.Errorf("openim: connect transport: %w", err)
	}
	c.listeners.AdvancedMsg().OnConnectionStatusChanged(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.convSyncer.IncrSyncConversations(gctx) })
	g.Go(func() error { return c.friendSyncer.IncrSync(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("openim: initial sync: %w", err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancelBG = cancel
	c.mu.Unlock()
	go c.runOptimizer(bgCtx)

	return nil
}

// runOptimizer periodically runs the store's query-planner optimizer,
// mirroring the teacher's hourly store.Optimize background task in
// server/main.go.
func (c *Client) runOptimizer(ctx context.Context) {
	interval := c.cfg.OptimizeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.store.Optimize(); err != nil {
				log.Printf("[openim] store optimize: %v", err)
			}
		}
	}
}

// Disconnect closes the transport session and stops background tasks.
// The local store remains open; call Close to release it entirely.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancelBG
	c.cancelBG = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.session.Disconnect()
}

// Close disconnects (if connected) and closes the local store.
func (c *Client) Close() error {
	c.Disconnect()
	return c.store.Close()
}

// SetConversationListener attaches l to receive conversation-syncer events.
func (c *Client) SetConversationListener(l listener.ConversationListener) {
	c.listeners.SetConversationListener(l)
}

// SetFriendListener attaches l to receive friend-syncer events.
func (c *Client) SetFriendListener(l listener.FriendListener) {
	c.listeners.SetFriendListener(l)
}

// SetAdvancedMsgListener attaches l to receive push-dispatcher message events.
func (c *Client) SetAdvancedMsgListener(l listener.AdvancedMsgListener) {
	c.listeners.SetAdvancedMsgListener(l)
}

// GetConversationListSplit implements spec §4.3's listing rule.
func (c *Client) GetConversationListSplit(offset, count int) ([]*model.Conversation, error) {
	return c.convSyncer.GetConversationListSplit(offset, count)
}

// SendTextMessage builds and sends a TEXT message to the given conversation.
func (c *Client) SendTextMessage(ctx context.Context, conversationID, recvID, groupID, text string) (*model.Message, error) {
	now := time.Now()
	msg := message.BuildText(message.BuildParams{
		ConversationID: conversationID,
		LoginUserID:    c.loginUserID,
		RecvID:         recvID,
		GroupID:        groupID,
		NowUnixMilli:   now.UnixMilli(),
		NowUnixNano:    now.UnixNano(),
	}, text)
	if err := c.sender.Send(ctx, msg, false); err != nil {
		return nil, err
	}
	return msg, nil
}

// RevokeMessage implements spec §4.5's revoke precondition and call.
func (c *Client) RevokeMessage(ctx context.Context, conversationID, clientMsgID string) error {
	return c.sender.Revoke(ctx, conversationID, clientMsgID)
}

// MarkConversationAsRead marks seqs read locally and notifies the server.
func (c *Client) MarkConversationAsRead(ctx context.Context, conversationID string, hasReadSeq int64, seqs []int64) error {
	if _, err := c.store.MarkAsReadBySeqs(conversationID, c.loginUserID, seqs); err != nil {
		return fmt.Errorf("openim: mark as read locally: %w", err)
	}
	return c.api.MarkConversationAsRead(ctx, httpclient.MarkConversationAsReadRequest{
		ConversationID: conversationID,
		UserID:         c.loginUserID,
		HasReadSeq:     hasReadSeq,
		Seqs:           seqs,
	})
}

// MarkAllConversationsAsRead zeroes unread_count across every local
// conversation and notifies the server, mirroring the original's "mark all
// as read" driving the local store and the HTTP call in the same pass
// (spec §13).
func (c *Client) MarkAllConversationsAsRead(ctx context.Context) error {
	if err := c.store.ZeroAllUnreadCounts(); err != nil {
		return fmt.Errorf("openim: zero unread counts locally: %w", err)
	}
	return c.api.MarkAllConversationAsRead(ctx, httpclient.MarkAllConversationAsReadRequest{
		UserID: c.loginUserID,
	})
}

// SendTypingStatus sends a typing-indicator update to recvID, the outbound
// half of the TYPING path (spec §13).
func (c *Client) SendTypingStatus(ctx context.Context, recvID, msgTip string) error {
	return c.sender.UpdateTypingStatus(ctx, recvID, msgTip)
}

// SearchLocalMessages runs a bounded keyword search over a conversation's
// local message log (spec §4.5).
func (c *Client) SearchLocalMessages(conversationID, keyword string, contentTypes []model.ContentType, timeBegin, timeEnd int64) ([]*model.Message, error) {
	return c.store.SearchLocalMessages(conversationID, keyword, contentTypes, timeBegin, timeEnd)
}

// DeleteMessage removes a single message locally by client_msg_id and
// notifies the server (spec §13).
func (c *Client) DeleteMessage(ctx context.Context, conversationID, clientMsgID string) error {
	if err := c.store.DeleteMessageByClientMsgID(conversationID, clientMsgID); err != nil {
		return fmt.Errorf("openim: delete message locally: %w", err)
	}
	return c.api.DeleteMsg(ctx, httpclient.DeleteMsgRequest{
		ConversationID: conversationID,
		ClientMsgID:    clientMsgID,
		UserID:         c.loginUserID,
	})
}

// DeleteMessages removes a batch of messages locally by seq and notifies
// the server (spec §13).
func (c *Client) DeleteMessages(ctx context.Context, conversationID string, seqs []int64) error {
	if err := c.store.DeleteMessagesBySeqs(conversationID, seqs); err != nil {
		return fmt.Errorf("openim: delete messages locally: %w", err)
	}
	return c.api.DeleteMsgs(ctx, httpclient.DeleteMsgsRequest{
		ConversationID: conversationID,
		Seqs:           seqs,
		UserID:         c.loginUserID,
	})
}

// ClearConversationMessages drops every conversation's local message log
// (spec §4.5's O(1) per-conversation DROP TABLE) and notifies the server in
// one call across all of conversationIDs (spec §13).
func (c *Client) ClearConversationMessages(ctx context.Context, conversationIDs []string) error {
	for _, id := range conversationIDs {
		if err := c.store.DeleteConversationMessages(id); err != nil {
			return fmt.Errorf("openim: clear conversation messages locally for %q: %w", id, err)
		}
	}
	return c.api.ClearConversationMsg(ctx, httpclient.ClearConversationMsgRequest{
		ConversationIDs: conversationIDs,
		UserID:          c.loginUserID,
	})
}
