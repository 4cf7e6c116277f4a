// Package messagelog appends messages to chats and reads chat histories.
package messagelog

import (
	"context"

	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/persistence"
	"github.com/tcriess/bingo-chat/types"
)

type Log struct {
	persister persistence.Persister
}

func New(persister persistence.Persister) *Log {
	return &Log{persister: persister}
}

func (l *Log) memberChat(ctx context.Context, userId, chatId string) (*types.Chat, error) {
	chat, err := l.persister.GetChat(ctx, chatId)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(userId) {
		return nil, types.Forbidden("not a member of this chat")
	}
	return chat, nil
}

// AppendMessage stores a message from senderId in chatId and moves the chat's latest message to it. The returned
// message has its sender and its chat (with members) expanded.
func (l *Log) AppendMessage(ctx context.Context, senderId, chatId, content string) (*types.Message, error) {
	if content == "" || chatId == "" {
		return nil, types.InvalidRequest("invalid data passed into request")
	}
	if _, err := l.memberChat(ctx, senderId, chatId); err != nil {
		return nil, err
	}
	message := &types.Message{SenderId: senderId, ChatId: chatId, Content: content}
	if err := l.persister.StoreMessage(ctx, message); err != nil {
		return nil, err
	}
	expanded, err := l.persister.GetMessage(ctx, message.Id)
	if err != nil {
		return nil, err
	}
	if err := l.persister.SetLatestMessage(ctx, chatId, message.Id); err != nil {
		// the message stays stored, only the chat's pointer is stale
		globals.AppLogger.Error("could not update latest message", "chat", chatId, "message", message.Id, "error", err)
		return nil, types.Internal(err, "could not update the chat")
	}
	return expanded, nil
}

// ListMessages returns the history of chatId, oldest first.
func (l *Log) ListMessages(ctx context.Context, requesterId, chatId string) ([]*types.Message, error) {
	if chatId == "" {
		return nil, types.InvalidRequest("chatId param not sent with request")
	}
	if _, err := l.memberChat(ctx, requesterId, chatId); err != nil {
		return nil, err
	}
	return l.persister.GetMessages(ctx, chatId)
}
