package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/api"
)

func authedChat(conv *fakeConvClient, chat *fakeChatClient) ChatService {
	return NewChatService(conv, chat, &fakeSession{mode: model.ModeAuthenticated}, false)
}

func TestConversationOpsRequireAuth(t *testing.T) {
	conv := &fakeConvClient{}
	svc := NewChatService(conv, &fakeChatClient{}, &fakeSession{mode: model.ModeGuest}, false)
	ctx := context.Background()

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	_, err = svc.Create(ctx, "t")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	assert.ErrorIs(t, svc.Select(ctx, 1), apperr.ErrAuthRequired)
	assert.ErrorIs(t, svc.Rename(ctx, 1, "t"), apperr.ErrAuthRequired)
	assert.ErrorIs(t, svc.Delete(ctx, 1), apperr.ErrAuthRequired)

	// 游客态的拒绝在本地完成，不发起任何远程调用
	assert.Zero(t, conv.callCount())
}

func TestGuestSendOmitsConversationID(t *testing.T) {
	var captured api.ChatRequest
	chat := &fakeChatClient{
		submitFn: func(ctx context.Context, req api.ChatRequest) (*api.ChatResult, error) {
			captured = req
			return &api.ChatResult{
				Response: "hello back",
				Sources:  []model.Source{{Title: "doc", Source: "https://example.com/doc"}},
			}, nil
		},
	}
	svc := NewChatService(&fakeConvClient{}, chat, &fakeSession{mode: model.ModeGuest}, false)

	<-svc.Send(context.Background(), "hello")

	assert.Equal(t, "hello", captured.Message)
	assert.Nil(t, captured.ConversationID)

	msgs := svc.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.DeliveryConfirmed, msgs[0].DeliveryState)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello back", msgs[1].Content)
	require.Len(t, msgs[1].Sources, 1)
	assert.Equal(t, "doc", msgs[1].Sources[0].Title)
}

func TestAuthenticatedSendCarriesConversationID(t *testing.T) {
	conv := &fakeConvClient{
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Title: "t"}, nil
		},
	}
	var captured api.ChatRequest
	chat := &fakeChatClient{
		submitFn: func(ctx context.Context, req api.ChatRequest) (*api.ChatResult, error) {
			captured = req
			return &api.ChatResult{Response: "ok"}, nil
		},
	}
	svc := authedChat(conv, chat)

	require.NoError(t, svc.Select(context.Background(), 7))
	<-svc.Send(context.Background(), "question")

	require.NotNil(t, captured.ConversationID)
	assert.Equal(t, int64(7), *captured.ConversationID)
}

func TestSendFailureMarksMessageFailed(t *testing.T) {
	chat := &fakeChatClient{
		submitFn: func(ctx context.Context, req api.ChatRequest) (*api.ChatResult, error) {
			return nil, fmt.Errorf("%w: connection refused", apperr.ErrTransport)
		},
	}
	svc := NewChatService(&fakeConvClient{}, chat, &fakeSession{mode: model.ModeGuest}, false)

	<-svc.Send(context.Background(), "doomed")

	// 失败的消息原位保留并标记，没有回答槽位
	msgs := svc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.DeliveryFailed, msgs[0].DeliveryState)
	assert.Equal(t, "doomed", msgs[0].Content)

	assert.ErrorIs(t, svc.Err(), apperr.ErrTransport)
	select {
	case err := <-svc.Errors():
		assert.ErrorIs(t, err, apperr.ErrTransport)
	case <-time.After(time.Second):
		t.Fatal("expected an error on the pipeline channel")
	}
}

func TestSendKeepsInitiationOrderUnderOutOfOrderResolution(t *testing.T) {
	releaseA := make(chan struct{})
	chat := &fakeChatClient{
		submitFn: func(ctx context.Context, req api.ChatRequest) (*api.ChatResult, error) {
			if req.Message == "A" {
				<-releaseA
			}
			return &api.ChatResult{Response: "re:" + req.Message}, nil
		},
	}
	svc := NewChatService(&fakeConvClient{}, chat, &fakeSession{mode: model.ModeGuest}, false)
	ctx := context.Background()

	doneA := svc.Send(ctx, "A")
	doneB := svc.Send(ctx, "B")
	<-doneB

	// B 先完成：它的回答紧跟 B，不越过仍在 Pending 的 A
	msgs := svc.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "A", msgs[0].Content)
	assert.Equal(t, model.DeliveryPending, msgs[0].DeliveryState)
	assert.Equal(t, "B", msgs[1].Content)
	assert.Equal(t, model.DeliveryConfirmed, msgs[1].DeliveryState)
	assert.Equal(t, "re:B", msgs[2].Content)

	close(releaseA)
	<-doneA

	// A 完成后序列严格保持发起顺序
	msgs = svc.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"A", "re:A", "B", "re:B"},
		[]string{msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content})
	assert.Equal(t, model.DeliveryConfirmed, msgs[0].DeliveryState)
}

func TestSelectLoadsHistoryAsConfirmed(t *testing.T) {
	conv := &fakeConvClient{
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			return &model.Conversation{
				ID:    id,
				Title: "history",
				Messages: []model.Message{
					{Role: model.RoleUser, Content: "q"},
					{Role: model.RoleAssistant, Content: "a"},
				},
			}, nil
		},
	}
	svc := authedChat(conv, &fakeChatClient{})

	require.NoError(t, svc.Select(context.Background(), 3))

	cur := svc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, int64(3), cur.ID)

	msgs := svc.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, model.DeliveryConfirmed, m.DeliveryState)
	}
}

func TestSelectVanishedConversationShowsPlaceholder(t *testing.T) {
	conv := &fakeConvClient{
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			return nil, fmt.Errorf("%w: conversation %d", apperr.ErrNotFound, id)
		},
	}
	svc := authedChat(conv, &fakeChatClient{})

	// 对话已在服务端消失：展示空占位，不作为错误上报
	require.NoError(t, svc.Select(context.Background(), 42))

	cur := svc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, int64(42), cur.ID)
	assert.Empty(t, svc.Messages())
	assert.NoError(t, svc.Err())
}

func TestSelectStaleResponseDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	conv := &fakeConvClient{
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			if id == 1 {
				close(firstStarted)
				<-release
				return &model.Conversation{ID: 1, Title: "slow",
					Messages: []model.Message{{Role: model.RoleUser, Content: "stale"}}}, nil
			}
			return &model.Conversation{ID: 2, Title: "fast",
				Messages: []model.Message{{Role: model.RoleUser, Content: "fresh"}}}, nil
		},
	}
	svc := authedChat(conv, &fakeChatClient{})
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() { firstDone <- svc.Select(ctx, 1) }()
	<-firstStarted

	require.NoError(t, svc.Select(ctx, 2))

	close(release)
	require.NoError(t, <-firstDone)

	// 迟到的响应被丢弃，不覆盖更新的选择
	cur := svc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, int64(2), cur.ID)
	msgs := svc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Content)
}

func TestCreatePrependsAndSelects(t *testing.T) {
	conv := &fakeConvClient{
		listFn: func(ctx context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: 1, Title: "old"}}, nil
		},
		createFn: func(ctx context.Context, title string, folderID *int64) (*model.Conversation, error) {
			return &model.Conversation{ID: 9, Title: title}, nil
		},
	}
	svc := authedChat(conv, &fakeChatClient{})
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)

	created, err := svc.Create(ctx, "New Chat")
	require.NoError(t, err)
	assert.Equal(t, int64(9), created.ID)

	convs := svc.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, int64(9), convs[0].ID)

	cur := svc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, int64(9), cur.ID)
	assert.Empty(t, svc.Messages())
}

func TestRenameRemoteFirst(t *testing.T) {
	renameErr := fmt.Errorf("%w: boom", apperr.ErrTransport)
	var failRename bool
	conv := &fakeConvClient{
		listFn: func(ctx context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: 1, Title: "before"}}, nil
		},
		updateFn: func(ctx context.Context, id int64, title string) (*model.Conversation, error) {
			if failRename {
				return nil, renameErr
			}
			return &model.Conversation{ID: id, Title: title}, nil
		},
	}
	svc := authedChat(conv, &fakeChatClient{})
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Rename(ctx, 1, "after"))
	assert.Equal(t, "after", svc.Conversations()[0].Title)

	// 远端失败时本地标题保持原值
	failRename = true
	assert.ErrorIs(t, svc.Rename(ctx, 1, "never"), apperr.ErrTransport)
	assert.Equal(t, "after", svc.Conversations()[0].Title)
}

func TestDeleteSelectedClearsView(t *testing.T) {
	conv := &fakeConvClient{
		listFn: func(ctx context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}, nil
		},
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Title: "a",
				Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}, nil
		},
		deleteFn: func(ctx context.Context, id int64) error { return nil },
	}
	svc := authedChat(conv, &fakeChatClient{})
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Select(ctx, 1))
	require.NotEmpty(t, svc.Messages())

	require.NoError(t, svc.Delete(ctx, 1))

	convs := svc.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, int64(2), convs[0].ID)
	assert.Nil(t, svc.Current())
	assert.Empty(t, svc.Messages())
}

func TestDeleteUnselectedKeepsView(t *testing.T) {
	conv := &fakeConvClient{
		listFn: func(ctx context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}, nil
		},
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Title: "a"}, nil
		},
		deleteFn: func(ctx context.Context, id int64) error { return nil },
	}
	svc := authedChat(conv, &fakeChatClient{})
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Select(ctx, 1))

	require.NoError(t, svc.Delete(ctx, 2))
	cur := svc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, int64(1), cur.ID)
}

func TestStreamedSendFillsReplyIncrementally(t *testing.T) {
	chat := &fakeChatClient{
		streamFn: func(ctx context.Context, req api.ChatRequest, onChunk func(string)) (*api.ChatResult, error) {
			onChunk("hel")
			onChunk("lo")
			return &api.ChatResult{Response: "hello"}, nil
		},
	}
	svc := NewChatService(&fakeConvClient{}, chat, &fakeSession{mode: model.ModeGuest}, true)

	<-svc.Send(context.Background(), "hi")

	msgs := svc.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, model.DeliveryConfirmed, msgs[1].DeliveryState)
}

func TestStreamedSendFailureDropsPartialReply(t *testing.T) {
	chat := &fakeChatClient{
		streamFn: func(ctx context.Context, req api.ChatRequest, onChunk func(string)) (*api.ChatResult, error) {
			onChunk("partial")
			return nil, fmt.Errorf("%w: stream broken", apperr.ErrTransport)
		},
	}
	svc := NewChatService(&fakeConvClient{}, chat, &fakeSession{mode: model.ModeGuest}, true)

	<-svc.Send(context.Background(), "hi")

	// 中断的流不留下残缺的回答
	msgs := svc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.DeliveryFailed, msgs[0].DeliveryState)
}

func TestReset(t *testing.T) {
	conv := &fakeConvClient{
		listFn: func(ctx context.Context) ([]model.Conversation, error) {
			return []model.Conversation{{ID: 1, Title: "a"}}, nil
		},
		getFn: func(ctx context.Context, id int64) (*model.Conversation, error) {
			return &model.Conversation{ID: id,
				Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}, nil
		},
	}
	svc := authedChat(conv, &fakeChatClient{})
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Select(ctx, 1))

	svc.Reset()
	assert.Empty(t, svc.Conversations())
	assert.Nil(t, svc.Current())
	assert.Empty(t, svc.Messages())
	assert.NoError(t, svc.Err())
}
