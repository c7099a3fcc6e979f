package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/api"
	"pai-chat-client/pkg/log"
)

// ChatService 持有对话列表与当前对话的消息序列，
// 并实现乐观的消息发送管线：用户消息先落位显示，
// 网络往返在后台完成，结果只原位更新既有槽位。
type ChatService interface {
	// List 拉取并返回对话列表。仅限已登录会话。
	List(ctx context.Context) ([]model.Conversation, error)
	// Create 创建新对话，置顶并立即选中（消息序列为空）。仅限已登录会话。
	Create(ctx context.Context, title string) (*model.Conversation, error)
	// Select 拉取一个对话的完整消息序列并替换当前显示。
	// 对话已在服务端消失时展示空占位而不报错。仅限已登录会话。
	Select(ctx context.Context, id int64) error
	// Rename 先请求远端改名，成功后才更新本地标题。仅限已登录会话。
	Rename(ctx context.Context, id int64, title string) error
	// Delete 删除对话；删除的是当前选中对话时清空选中与消息序列。
	// 仅限已登录会话。
	Delete(ctx context.Context, id int64) error

	// Send 立即把用户消息以 Pending 状态追加到可见序列并异步发送。
	// 游客态（无选中对话）同样可用，出站载荷省略对话 ID。
	// 返回的通道在这条消息到达终态（Confirmed/Failed）后关闭。
	Send(ctx context.Context, content string) <-chan struct{}

	// Conversations 返回对话列表的副本。
	Conversations() []model.Conversation
	// Current 返回当前选中的对话（无选中时为 nil）。
	Current() *model.Conversation
	// Messages 返回当前消息序列的副本，严格保持发起顺序。
	Messages() []model.Message

	// Errors 是管线的错误通道：每次发送失败投递一个错误值。
	Errors() <-chan error
	// Err 返回最近一次对话操作的错误，ClearErr 清除它。
	Err() error
	ClearErr()
	Subscribe(fn func()) (cancel func())

	// Reset 清空全部内存状态（退出登录时由会话服务调用）。
	Reset()
}

type chatService struct {
	mu            sync.Mutex
	conversations []model.Conversation
	current       *model.Conversation
	messages      []*model.Message
	errVal        error

	// selectGen 递增标记每次 Select/Create；过期的 Select 响应被丢弃，
	// 不允许覆盖更新的状态。
	selectGen    uint64
	selectCancel context.CancelFunc

	convClient api.ConversationClient
	chatClient api.ChatClient
	session    SessionReader
	// stream 为 true 时通过 WebSocket 流式提交，回答分块落入槽位
	stream bool

	errCh    chan error
	notifier notifier
}

// NewChatService 创建一个 ChatService。
func NewChatService(convClient api.ConversationClient, chatClient api.ChatClient, session SessionReader, stream bool) ChatService {
	return &chatService{
		convClient: convClient,
		chatClient: chatClient,
		session:    session,
		stream:     stream,
		errCh:      make(chan error, 16),
	}
}

// requireAuth 在本地检查会话模式，游客态直接拒绝，不发起远程调用。
func (s *chatService) requireAuth() error {
	if s.session.Mode() != model.ModeAuthenticated {
		return fmt.Errorf("%w: conversation operations need a signed-in session", apperr.ErrAuthRequired)
	}
	return nil
}

// List 拉取并返回对话列表。
func (s *chatService) List(ctx context.Context) ([]model.Conversation, error) {
	if err := s.requireAuth(); err != nil {
		return nil, err
	}
	convs, err := s.convClient.List(ctx)
	if err != nil {
		s.setErr(err)
		return nil, err
	}
	s.mu.Lock()
	s.conversations = convs
	s.mu.Unlock()
	s.notifier.notify()
	return convs, nil
}

// Create 创建新对话并立即选中。
func (s *chatService) Create(ctx context.Context, title string) (*model.Conversation, error) {
	if err := s.requireAuth(); err != nil {
		return nil, err
	}
	conv, err := s.convClient.Create(ctx, title, nil)
	if err != nil {
		s.setErr(err)
		return nil, err
	}

	s.mu.Lock()
	// 让仍在途的 Select 失效：它的响应不允许覆盖新建的对话
	s.selectGen++
	if s.selectCancel != nil {
		s.selectCancel()
		s.selectCancel = nil
	}
	s.conversations = append([]model.Conversation{*conv}, s.conversations...)
	s.current = conv
	s.messages = nil
	s.mu.Unlock()
	s.notifier.notify()
	return conv, nil
}

// Select 拉取一个对话的完整消息序列并替换当前显示。
func (s *chatService) Select(ctx context.Context, id int64) error {
	if err := s.requireAuth(); err != nil {
		return err
	}

	s.mu.Lock()
	s.selectGen++
	gen := s.selectGen
	// 被放弃的上一次选择取消其在途请求，过期响应不会覆盖新状态
	if s.selectCancel != nil {
		s.selectCancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.selectCancel = cancel
	s.mu.Unlock()

	conv, err := s.convClient.Get(fetchCtx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.selectGen {
		// 期间又发生了 Select/Create，丢弃这份过期结果
		return nil
	}
	s.selectCancel = nil

	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// 对话已被其他会话删除：展示空占位，不崩溃
			log.Warnf("对话 %d 已不存在，展示空占位", id)
			s.current = &model.Conversation{ID: id}
			s.messages = nil
			go s.notifier.notify()
			return nil
		}
		s.errVal = err
		go s.notifier.notify()
		return err
	}

	msgs := make([]*model.Message, 0, len(conv.Messages))
	for i := range conv.Messages {
		m := conv.Messages[i]
		// 服务端返回的消息都是已确认的历史
		m.DeliveryState = model.DeliveryConfirmed
		msgs = append(msgs, &m)
	}
	meta := *conv
	meta.Messages = nil
	s.current = &meta
	s.messages = msgs
	go s.notifier.notify()
	return nil
}

// Rename 先请求远端改名，成功后才更新本地标题。
// 失败时本地标题保持原值，避免显示一个并不存在的新标题。
func (s *chatService) Rename(ctx context.Context, id int64, title string) error {
	if err := s.requireAuth(); err != nil {
		return err
	}
	conv, err := s.convClient.Update(ctx, id, title)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations[i].Title = conv.Title
			s.conversations[i].UpdatedAt = conv.UpdatedAt
			break
		}
	}
	if s.current != nil && s.current.ID == id {
		s.current.Title = conv.Title
		s.current.UpdatedAt = conv.UpdatedAt
	}
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// Delete 删除对话。
func (s *chatService) Delete(ctx context.Context, id int64) error {
	if err := s.requireAuth(); err != nil {
		return err
	}
	if err := s.convClient.Delete(ctx, id); err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	kept := s.conversations[:0]
	for _, c := range s.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.conversations = kept
	if s.current != nil && s.current.ID == id {
		s.current = nil
		s.messages = nil
	}
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// Send 立即把用户消息以 Pending 状态追加到可见序列并异步发送。
func (s *chatService) Send(ctx context.Context, content string) <-chan struct{} {
	s.mu.Lock()
	msg := &model.Message{
		Role:          model.RoleUser,
		Content:       content,
		CreatedAt:     time.Now(),
		DeliveryState: model.DeliveryPending,
	}
	s.messages = append(s.messages, msg)

	// 游客没有选中对话：载荷省略对话 ID，服务端不持久化这一轮
	var convID *int64
	if s.current != nil && s.current.ID != 0 {
		id := s.current.ID
		convID = &id
	}
	s.mu.Unlock()
	s.notifier.notify()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatch(ctx, msg, convID)
	}()
	return done
}

// dispatch 执行一次发送的网络往返并原位解析结果。
// 每次发送独立解析，互不阻塞；先发起的消息槽位永远在前。
func (s *chatService) dispatch(ctx context.Context, msg *model.Message, convID *int64) {
	req := api.ChatRequest{Message: msg.Content, ConversationID: convID}

	var result *api.ChatResult
	var err error
	var reply *model.Message

	if s.stream {
		result, err = s.chatClient.SubmitStream(ctx, req, func(delta string) {
			s.mu.Lock()
			if reply == nil {
				reply = &model.Message{
					Role:          model.RoleAssistant,
					CreatedAt:     time.Now(),
					DeliveryState: model.DeliveryConfirmed,
				}
				s.insertAfterLocked(msg, reply)
			}
			reply.Content += delta
			s.mu.Unlock()
			s.notifier.notify()
		})
	} else {
		result, err = s.chatClient.Submit(ctx, req)
	}

	s.mu.Lock()
	if err != nil {
		// 失败的消息原位保留并标记，不移除、不自动重试
		msg.DeliveryState = model.DeliveryFailed
		if reply != nil {
			// 流中断留下的残缺回答不保留
			s.removeLocked(reply)
		}
		s.errVal = err
		s.mu.Unlock()
		s.pushErr(err)
		s.notifier.notify()
		return
	}

	msg.DeliveryState = model.DeliveryConfirmed
	if reply == nil {
		reply = &model.Message{
			Role:          model.RoleAssistant,
			CreatedAt:     time.Now(),
			DeliveryState: model.DeliveryConfirmed,
		}
		s.insertAfterLocked(msg, reply)
	}
	reply.Content = result.Response
	reply.Sources = result.Sources
	s.mu.Unlock()
	s.notifier.notify()
}

// insertAfterLocked 把回复插到它对应的用户消息之后。
// 这样后发先至的回复不会越过前面仍在 Pending 的消息。
func (s *chatService) insertAfterLocked(after, m *model.Message) {
	for i, cur := range s.messages {
		if cur == after {
			s.messages = append(s.messages, nil)
			copy(s.messages[i+2:], s.messages[i+1:])
			s.messages[i+1] = m
			return
		}
	}
	// 消息序列已被重置（例如切换对话），丢弃这份回复
}

// removeLocked 从序列中移除一条消息。
func (s *chatService) removeLocked(m *model.Message) {
	for i, cur := range s.messages {
		if cur == m {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Conversations 返回对话列表的副本。
func (s *chatService) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Current 返回当前选中的对话。
func (s *chatService) Current() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

// Messages 返回当前消息序列的副本。
func (s *chatService) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// Errors 返回管线的错误通道。
func (s *chatService) Errors() <-chan error {
	return s.errCh
}

// Err 返回最近一次对话操作的错误。
func (s *chatService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// ClearErr 清除当前错误。
func (s *chatService) ClearErr() {
	s.mu.Lock()
	s.errVal = nil
	s.mu.Unlock()
}

func (s *chatService) Subscribe(fn func()) (cancel func()) {
	return s.notifier.Subscribe(fn)
}

// Reset 清空全部内存状态。
func (s *chatService) Reset() {
	s.mu.Lock()
	s.selectGen++
	if s.selectCancel != nil {
		s.selectCancel()
		s.selectCancel = nil
	}
	s.conversations = nil
	s.current = nil
	s.messages = nil
	s.errVal = nil
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *chatService) setErr(err error) {
	s.mu.Lock()
	s.errVal = err
	s.mu.Unlock()
	s.notifier.notify()
}

// pushErr 向错误通道投递一个错误值，通道满时丢弃而不阻塞管线。
func (s *chatService) pushErr(err error) {
	select {
	case s.errCh <- err:
	default:
		log.Warnf("错误通道已满，丢弃: %v", err)
	}
}
