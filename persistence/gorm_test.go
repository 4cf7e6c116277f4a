package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/bingo-chat/types"
)

func newTestPersister(t *testing.T) *GormPersist {
	t.Helper()
	p, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func storeUser(t *testing.T, p *GormPersist, name, email string) *types.User {
	t.Helper()
	user := &types.User{Name: name, Email: email, Password: "hash", Pic: types.DefaultPic}
	require.NoError(t, p.StoreUser(context.Background(), user))
	return user
}

func TestStoreUserDuplicateEmail(t *testing.T) {
	p := newTestPersister(t)
	storeUser(t, p, "Alice", "alice@x.com")

	err := p.StoreUser(context.Background(), &types.User{Name: "Other", Email: "alice@x.com", Password: "h", Pic: "p"})
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))
}

func TestGetUserNotFound(t *testing.T) {
	p := newTestPersister(t)
	_, err := p.GetUser(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = p.GetUserByEmail(context.Background(), "missing@x.com")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSearchUsers(t *testing.T) {
	ctx := context.Background()
	p := newTestPersister(t)
	alice := storeUser(t, p, "Alice", "alice@x.com")
	storeUser(t, p, "Bob", "bob@x.com")
	storeUser(t, p, "Carol", "carol@example.org")
	storeUser(t, p, "100%_real", "percent@x.com")

	users, err := p.SearchUsers(ctx, "X.COM", alice.Id)
	require.NoError(t, err)
	names := make([]string, 0)
	for _, u := range users {
		names = append(names, u.Name)
	}
	assert.ElementsMatch(t, []string{"Bob", "100%_real"}, names)

	users, err = p.SearchUsers(ctx, "caR", alice.Id)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Carol", users[0].Name)

	users, err = p.SearchUsers(ctx, "%", alice.Id)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "100%_real", users[0].Name)

	users, err = p.SearchUsers(ctx, "", alice.Id)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestGetOrCreateDirectChatIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	p := newTestPersister(t)
	alice := storeUser(t, p, "Alice", "alice@x.com")
	bob := storeUser(t, p, "Bob", "bob@x.com")

	first, err := p.GetOrCreateDirectChat(ctx, alice.Id, bob.Id)
	require.NoError(t, err)
	second, err := p.GetOrCreateDirectChat(ctx, bob.Id, alice.Id)
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.False(t, first.IsGroupChat)
	assert.Nil(t, first.GroupAdmin)
	assert.Len(t, first.Users, 2)
	assert.True(t, first.HasMember(alice.Id))
	assert.True(t, first.HasMember(bob.Id))
}

func TestGetOrCreateDirectChatConcurrent(t *testing.T) {
	ctx := context.Background()
	p := newTestPersister(t)
	alice := storeUser(t, p, "Alice", "alice@x.com")
	bob := storeUser(t, p, "Bob", "bob@x.com")

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.Id, bob.Id
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := p.GetOrCreateDirectChat(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = chat.Id
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	chats, err := p.GetChatsForUser(ctx, alice.Id)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestChatMembershipIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newTestPersister(t)
	alice := storeUser(t, p, "Alice", "alice@x.com")
	bob := storeUser(t, p, "Bob", "bob@x.com")
	carol := storeUser(t, p, "Carol", "carol@x.com")

	chat := &types.Chat{ChatName: "friends", IsGroupChat: true, GroupAdminId: &alice.Id}
	require.NoError(t, p.CreateChat(ctx, chat, []string{alice.Id, bob.Id, bob.Id}))

	require.NoError(t, p.AddChatMember(ctx, chat.Id, carol.Id))
	require.NoError(t, p.AddChatMember(ctx, chat.Id, carol.Id))
	got, err := p.GetChat(ctx, chat.Id)
	require.NoError(t, err)
	assert.Len(t, got.Users, 3)
	require.NotNil(t, got.GroupAdmin)
	assert.Equal(t, alice.Id, got.GroupAdmin.Id)

	require.NoError(t, p.RemoveChatMember(ctx, chat.Id, bob.Id))
	require.NoError(t, p.RemoveChatMember(ctx, chat.Id, bob.Id))
	got, err = p.GetChat(ctx, chat.Id)
	require.NoError(t, err)
	assert.Len(t, got.Users, 2)
	assert.False(t, got.HasMember(bob.Id))
}

func TestRenameMissingChat(t *testing.T) {
	p := newTestPersister(t)
	err := p.RenameChat(context.Background(), "missing", "name")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = p.GetChat(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestMessagesAndLatestMessage(t *testing.T) {
	ctx := context.Background()
	p := newTestPersister(t)
	alice := storeUser(t, p, "Alice", "alice@x.com")
	bob := storeUser(t, p, "Bob", "bob@x.com")
	carol := storeUser(t, p, "Carol", "carol@x.com")

	older, err := p.GetOrCreateDirectChat(ctx, alice.Id, carol.Id)
	require.NoError(t, err)
	chat, err := p.GetOrCreateDirectChat(ctx, alice.Id, bob.Id)
	require.NoError(t, err)

	base := time.Now()
	for i, content := range []string{"one", "two", "three"} {
		m := &types.Message{SenderId: alice.Id, ChatId: older.Id, Content: content, CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}
		require.NoError(t, p.StoreMessage(ctx, m))
		require.NoError(t, p.SetLatestMessage(ctx, older.Id, m.Id))
	}

	messages, err := p.GetMessages(ctx, older.Id)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "three", messages[2].Content)
	require.NotNil(t, messages[0].Sender)
	assert.Equal(t, "Alice", messages[0].Sender.Name)
	require.NotNil(t, messages[0].Chat)
	assert.Equal(t, older.Id, messages[0].Chat.Id)
	assert.Len(t, messages[0].Chat.Users, 2, "listed messages can be re-sent as new message signals")

	full, err := p.GetMessage(ctx, messages[2].Id)
	require.NoError(t, err)
	assert.Len(t, full.Chat.Users, 2)

	chats, err := p.GetChatsForUser(ctx, alice.Id)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, older.Id, chats[0].Id, "chat with the latest message comes first")
	assert.Equal(t, chat.Id, chats[1].Id)
	require.NotNil(t, chats[0].LatestMessage)
	assert.Equal(t, "three", chats[0].LatestMessage.Content)
	require.NotNil(t, chats[0].LatestMessage.Sender)
	assert.Equal(t, "alice@x.com", chats[0].LatestMessage.Sender.Email)
	assert.Nil(t, chats[1].LatestMessage)

	err = p.SetLatestMessage(ctx, "missing", messages[0].Id)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()
	p := newTestPersister(t)
	alice := storeUser(t, p, "Alice", "alice@x.com")

	require.NoError(t, p.UpdatePassword(ctx, alice.Id, "new-hash"))
	got, err := p.GetUser(ctx, alice.Id)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.Password)

	assert.True(t, errors.Is(p.UpdatePassword(ctx, "missing", "x"), types.ErrNotFound))
}
