package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var (
	validate = validator.New()

	errChatWithoutMembers = errors.New("chat.users not defined")
)

type setupSignal struct {
	UserId string `mapstructure:"_id" validate:"required"`
}

type roomSignal struct {
	Room string `mapstructure:"room" validate:"required"`
}

type signalUser struct {
	Id string `mapstructure:"_id" validate:"required"`
}

type signalChat struct {
	Users []signalUser `mapstructure:"users" validate:"dive"`
}

// newMessageSignal is the part of an expanded message the hub needs for the fan-out. The message itself is
// forwarded unchanged.
type newMessageSignal struct {
	Sender *signalUser `mapstructure:"sender"`
	Chat   *signalChat `mapstructure:"chat"`
}

func unmarshalData(data json.RawMessage) (interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("missing data")
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// alias copies the first present key of keys to key, unless key already is set.
func alias(m map[string]interface{}, key string, keys ...string) {
	if _, ok := m[key]; ok {
		return
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			m[key] = v
			return
		}
	}
}

// decodeSetup accepts a user object (with "_id" or "id") or a bare user id.
func decodeSetup(data json.RawMessage) (*setupSignal, error) {
	raw, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	s := &setupSignal{}
	switch v := raw.(type) {
	case string:
		s.UserId = v

	case map[string]interface{}:
		alias(v, "_id", "id")
		if err := mapstructure.WeakDecode(v, s); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unexpected setup payload %T", raw)
	}
	if err := validate.Struct(s); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeRoom accepts a bare room id or an object with "room", "chatId" or "_id".
func decodeRoom(data json.RawMessage) (*roomSignal, error) {
	raw, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	s := &roomSignal{}
	switch v := raw.(type) {
	case string:
		s.Room = v

	case map[string]interface{}:
		alias(v, "room", "chatId", "_id")
		if err := mapstructure.WeakDecode(v, s); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unexpected room payload %T", raw)
	}
	if err := validate.Struct(s); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeNewMessage(data json.RawMessage) (*newMessageSignal, error) {
	raw, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected message payload %T", raw)
	}
	s := &newMessageSignal{}
	if err := mapstructure.WeakDecode(m, s); err != nil {
		return nil, err
	}
	if s.Chat == nil || s.Chat.Users == nil {
		return nil, errChatWithoutMembers
	}
	if err := validate.Struct(s); err != nil {
		return nil, err
	}
	return s, nil
}
