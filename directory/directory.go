// Package directory resolves direct chats and manages group chats and their members.
package directory

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/persistence"
	"github.com/tcriess/bingo-chat/types"
)

// minGroupMembers is the number of members besides the creator a group needs.
const minGroupMembers = 2

type Directory struct {
	persister persistence.Persister
}

func New(persister persistence.Persister) *Directory {
	return &Directory{persister: persister}
}

// GetOrCreateDirectChat returns the one-to-one chat between requesterId and otherUserId, creating it on first use.
func (d *Directory) GetOrCreateDirectChat(ctx context.Context, requesterId, otherUserId string) (*types.Chat, error) {
	if otherUserId == "" {
		return nil, types.InvalidRequest("userId param not sent with request")
	}
	if otherUserId == requesterId {
		return nil, types.InvalidRequest("cannot start a chat with yourself")
	}
	if _, err := d.persister.GetUser(ctx, otherUserId); err != nil {
		return nil, err
	}
	return d.persister.GetOrCreateDirectChat(ctx, requesterId, otherUserId)
}

func (d *Directory) ListChatsForUser(ctx context.Context, userId string) ([]*types.Chat, error) {
	return d.persister.GetChatsForUser(ctx, userId)
}

// CreateGroupChat creates a group named name with the creator as admin and member. memberIds must name at least two
// existing users other than the creator.
func (d *Directory) CreateGroupChat(ctx context.Context, creatorId string, memberIds []string, name string) (*types.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(memberIds) == 0 {
		return nil, types.InvalidRequest("please fill all the fields")
	}
	others := lo.Without(lo.Uniq(lo.Compact(memberIds)), creatorId)
	if len(others) < minGroupMembers {
		return nil, types.InvalidRequest("more than 2 users are required to form a group chat")
	}
	users, err := d.persister.GetUsers(ctx, others)
	if err != nil {
		return nil, err
	}
	if len(users) != len(others) {
		found := lo.Map(users, func(u *types.User, _ int) string { return u.Id })
		missing, _ := lo.Difference(others, found)
		return nil, types.InvalidRequest("unknown users: %s", strings.Join(missing, ", "))
	}
	chat := &types.Chat{
		ChatName:     name,
		IsGroupChat:  true,
		GroupAdminId: &creatorId,
	}
	if err := d.persister.CreateChat(ctx, chat, append(others, creatorId)); err != nil {
		return nil, err
	}
	globals.AppLogger.Info("created group chat", "chat", chat.Id, "admin", creatorId, "members", len(others)+1)
	return d.persister.GetChat(ctx, chat.Id)
}

// adminGroup loads the chat and checks that requesterId is its admin.
func (d *Directory) adminGroup(ctx context.Context, requesterId, chatId string) (*types.Chat, error) {
	if chatId == "" {
		return nil, types.InvalidRequest("chatId param not sent with request")
	}
	chat, err := d.persister.GetChat(ctx, chatId)
	if err != nil {
		return nil, err
	}
	if !chat.IsAdmin(requesterId) {
		return nil, types.Forbidden("only the group admin can change the group")
	}
	return chat, nil
}

func (d *Directory) RenameGroup(ctx context.Context, requesterId, chatId, newName string) (*types.Chat, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, types.InvalidRequest("chatName param not sent with request")
	}
	if _, err := d.adminGroup(ctx, requesterId, chatId); err != nil {
		return nil, err
	}
	if err := d.persister.RenameChat(ctx, chatId, newName); err != nil {
		return nil, err
	}
	return d.persister.GetChat(ctx, chatId)
}

func (d *Directory) AddMember(ctx context.Context, requesterId, chatId, userId string) (*types.Chat, error) {
	if userId == "" {
		return nil, types.InvalidRequest("userId param not sent with request")
	}
	if _, err := d.adminGroup(ctx, requesterId, chatId); err != nil {
		return nil, err
	}
	if _, err := d.persister.GetUser(ctx, userId); err != nil {
		return nil, err
	}
	if err := d.persister.AddChatMember(ctx, chatId, userId); err != nil {
		return nil, err
	}
	return d.persister.GetChat(ctx, chatId)
}

func (d *Directory) RemoveMember(ctx context.Context, requesterId, chatId, userId string) (*types.Chat, error) {
	if userId == "" {
		return nil, types.InvalidRequest("userId param not sent with request")
	}
	if _, err := d.adminGroup(ctx, requesterId, chatId); err != nil {
		return nil, err
	}
	if err := d.persister.RemoveChatMember(ctx, chatId, userId); err != nil {
		return nil, err
	}
	return d.persister.GetChat(ctx, chatId)
}

// LeaveGroup removes requesterId from a group chat. An admin leaving keeps the admin reference, the group is left
// without an acting admin. Direct chats cannot be left.
func (d *Directory) LeaveGroup(ctx context.Context, requesterId, chatId string) (*types.Chat, error) {
	if chatId == "" {
		return nil, types.InvalidRequest("chatId param not sent with request")
	}
	chat, err := d.persister.GetChat(ctx, chatId)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroupChat {
		return nil, types.InvalidRequest("chat is not a group chat")
	}
	if err := d.persister.RemoveChatMember(ctx, chatId, requesterId); err != nil {
		return nil, err
	}
	if chat.IsAdmin(requesterId) {
		globals.AppLogger.Warn("group admin left the group", "chat", chatId, "admin", requesterId)
	}
	return d.persister.GetChat(ctx, chatId)
}
