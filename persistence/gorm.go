package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/samber/lo"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const directChatName = "sender"

type GormPersist struct {
	db *gorm.DB
}

var _ Persister = &GormPersist{}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	return Open(cfg.PersistenceConfig.Type, cfg.PersistenceConfig.DSN)
}

// Open connects to the database of the given type ("sqlite" or "postgres") and migrates the schema.
func Open(dbType, dsn string) (*GormPersist, error) {
	db, err := setupGormDB(dbType, dsn)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("no persistence dsn configured")
	}
	var dial gorm.Dialector
	switch dbType {
	case "postgres":
		dial = postgres.Open(dsn)

	case "sqlite":
		dial = sqlite.Open(dsn)

	default:
		return nil, fmt.Errorf("invalid persistence type %q", dbType)
	}
	gormLogger := logger.New(
		globals.AppLogger.Named("gorm").StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(dial, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		// chats and messages reference each other
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if dbType == "sqlite" {
		// sqlite serializes writers anyway, a single connection also keeps ":memory:" databases alive
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	err = db.SetupJoinTable(&types.Chat{}, "Users", &types.ChatMember{})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&types.User{}, &types.Message{}, &types.Chat{}, &types.ChatMember{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NotFound("%s not found", what)
	}
	return types.Internal(err, "could not access "+what)
}

func (p *GormPersist) StoreUser(ctx context.Context, user *types.User) error {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	err := p.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.InvalidRequest("user already exists")
	}
	return translate(err, "user")
}

func (p *GormPersist) GetUser(ctx context.Context, id string) (*types.User, error) {
	user := &types.User{}
	err := p.db.WithContext(ctx).Take(user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return user, nil
}

func (p *GormPersist) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	user := &types.User{}
	err := p.db.WithContext(ctx).Take(user, "email = ?", email).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return user, nil
}

func (p *GormPersist) GetUsers(ctx context.Context, ids []string) ([]*types.User, error) {
	users := make([]*types.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	err := p.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, translate(err, "users")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchUsers matches keyword case-insensitively against name and email. An empty keyword matches everyone.
func (p *GormPersist) SearchUsers(ctx context.Context, keyword, excludeId string) ([]*types.User, error) {
	users := make([]*types.User, 0)
	q := p.db.WithContext(ctx).Where("id <> ?", excludeId)
	if keyword != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
		q = q.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	err := q.Order("name").Find(&users).Error
	return users, translate(err, "users")
}

func (p *GormPersist) UpdatePassword(ctx context.Context, userId, hash string) error {
	res := p.db.WithContext(ctx).Model(&types.User{}).Where("id = ?", userId).Update("password", hash)
	if res.Error != nil {
		return translate(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return types.NotFound("user not found")
	}
	return nil
}

func preloadChat(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Users").
		Preload("GroupAdmin").
		Preload("LatestMessage").
		Preload("LatestMessage.Sender")
}

func (p *GormPersist) GetOrCreateDirectChat(ctx context.Context, a, b string) (*types.Chat, error) {
	key := types.DirectKey(a, b)
	var chatId string
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat := &types.Chat{}
		err := tx.Where("direct_key = ?", key).Take(chat).Error
		if err == nil {
			chatId = chat.Id
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		chat = &types.Chat{
			Id:          uuid.NewString(),
			ChatName:    directChatName,
			IsGroupChat: false,
			DirectKey:   &key,
		}
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "direct_key"}}, DoNothing: true}).
			Create(chat)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// a concurrent call created it first
			existing := &types.Chat{}
			if err := tx.Where("direct_key = ?", key).Take(existing).Error; err != nil {
				return err
			}
			chatId = existing.Id
			return nil
		}
		chatId = chat.Id
		members := []types.ChatMember{{ChatId: chat.Id, UserId: a}, {ChatId: chat.Id, UserId: b}}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, translate(err, "chat")
	}
	return p.GetChat(ctx, chatId)
}

func (p *GormPersist) CreateChat(ctx context.Context, chat *types.Chat, memberIds []string) error {
	if chat.Id == "" {
		chat.Id = uuid.NewString()
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(chat).Error; err != nil {
			return err
		}
		members := lo.Map(lo.Uniq(memberIds), func(userId string, _ int) types.ChatMember {
			return types.ChatMember{ChatId: chat.Id, UserId: userId}
		})
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
	return translate(err, "chat")
}

func (p *GormPersist) GetChat(ctx context.Context, id string) (*types.Chat, error) {
	chat := &types.Chat{}
	err := preloadChat(p.db.WithContext(ctx)).Take(chat, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "chat")
	}
	return chat, nil
}

// GetChatsForUser returns the chats userId is a member of, most recently updated first.
func (p *GormPersist) GetChatsForUser(ctx context.Context, userId string) ([]*types.Chat, error) {
	chats := make([]*types.Chat, 0)
	memberOf := p.db.Model(&types.ChatMember{}).Select("chat_id").Where("user_id = ?", userId)
	err := preloadChat(p.db.WithContext(ctx)).
		Where("id IN (?)", memberOf).
		Order("updated_at DESC").
		Find(&chats).Error
	return chats, translate(err, "chats")
}

func (p *GormPersist) RenameChat(ctx context.Context, chatId, name string) error {
	res := p.db.WithContext(ctx).Model(&types.Chat{}).Where("id = ?", chatId).Update("chat_name", name)
	if res.Error != nil {
		return translate(res.Error, "chat")
	}
	if res.RowsAffected == 0 {
		return types.NotFound("chat not found")
	}
	return nil
}

// AddChatMember is idempotent.
func (p *GormPersist) AddChatMember(ctx context.Context, chatId, userId string) error {
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&types.ChatMember{ChatId: chatId, UserId: userId}).Error
	return translate(err, "chat member")
}

// RemoveChatMember is idempotent.
func (p *GormPersist) RemoveChatMember(ctx context.Context, chatId, userId string) error {
	err := p.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatId, userId).
		Delete(&types.ChatMember{}).Error
	return translate(err, "chat member")
}

func (p *GormPersist) StoreMessage(ctx context.Context, message *types.Message) error {
	if message.Id == "" {
		message.Id = uuid.NewString()
	}
	err := p.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error
	return translate(err, "message")
}

func (p *GormPersist) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.WithContext(ctx).
		Preload("Sender").
		Preload("Chat").
		Preload("Chat.Users").
		Take(message, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "message")
	}
	return message, nil
}

// GetMessages returns the messages of a chat, oldest first.
func (p *GormPersist) GetMessages(ctx context.Context, chatId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := p.db.WithContext(ctx).
		Preload("Sender").
		Preload("Chat").
		Preload("Chat.Users").
		Where("chat_id = ?", chatId).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, translate(err, "messages")
}

func (p *GormPersist) SetLatestMessage(ctx context.Context, chatId, messageId string) error {
	res := p.db.WithContext(ctx).Model(&types.Chat{}).Where("id = ?", chatId).Updates(map[string]interface{}{
		"latest_message_id": messageId,
		"updated_at":        time.Now(),
	})
	if res.Error != nil {
		return translate(res.Error, "chat")
	}
	if res.RowsAffected == 0 {
		return types.NotFound("chat not found")
	}
	return nil
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
