package persistence

import (
	"context"

	"github.com/tcriess/bingo-chat/types"
)

// Persister stores users, chats and messages. Lookups return types.ErrNotFound (wrapped in a *types.Error) for
// missing records. Chats and messages are returned expanded: chats with their members, admin and latest message
// (including its sender), messages with their sender and chat (including the chat's members).
type Persister interface {
	StoreUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetUsers(ctx context.Context, ids []string) ([]*types.User, error)
	SearchUsers(ctx context.Context, keyword, excludeId string) ([]*types.User, error)
	UpdatePassword(ctx context.Context, userId, hash string) error

	// GetOrCreateDirectChat returns the direct chat between a and b, creating it if needed. At most one direct
	// chat exists per unordered pair, also under concurrent calls.
	GetOrCreateDirectChat(ctx context.Context, a, b string) (*types.Chat, error)
	CreateChat(ctx context.Context, chat *types.Chat, memberIds []string) error
	GetChat(ctx context.Context, id string) (*types.Chat, error)
	GetChatsForUser(ctx context.Context, userId string) ([]*types.Chat, error)
	RenameChat(ctx context.Context, chatId, name string) error
	AddChatMember(ctx context.Context, chatId, userId string) error
	RemoveChatMember(ctx context.Context, chatId, userId string) error

	StoreMessage(ctx context.Context, message *types.Message) error
	GetMessage(ctx context.Context, id string) (*types.Message, error)
	GetMessages(ctx context.Context, chatId string) ([]*types.Message, error)
	SetLatestMessage(ctx context.Context, chatId, messageId string) error

	Close() error
}
