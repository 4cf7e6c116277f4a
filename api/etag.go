package api

import (
	"fmt"
	"net/http"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/tcriess/bingo-chat/types"
)

type chatVersion struct {
	Id        string
	Name      string
	UpdatedAt int64
	Admin     string
	Latest    string
	Members   []string `hash:"set"`
}

// messageVersion covers the sender and chat fields embedded in every listed message.
type messageVersion struct {
	Id            string
	Sender        string
	SenderName    string
	SenderPic     string
	Chat          string
	ChatName      string
	ChatUpdatedAt int64
	Members       []string `hash:"set"`
}

func chatVersions(chats []*types.Chat) []chatVersion {
	versions := make([]chatVersion, 0, len(chats))
	for _, chat := range chats {
		v := chatVersion{Id: chat.Id, Name: chat.ChatName, UpdatedAt: chat.UpdatedAt.UnixNano()}
		if chat.GroupAdminId != nil {
			v.Admin = *chat.GroupAdminId
		}
		if chat.LatestMessageId != nil {
			v.Latest = *chat.LatestMessageId
		}
		for _, u := range chat.Users {
			v.Members = append(v.Members, u.Id)
		}
		versions = append(versions, v)
	}
	return versions
}

func messageVersions(messages []*types.Message) []messageVersion {
	versions := make([]messageVersion, 0, len(messages))
	for _, m := range messages {
		v := messageVersion{Id: m.Id, Sender: m.SenderId, Chat: m.ChatId}
		if m.Sender != nil {
			v.SenderName, v.SenderPic = m.Sender.Name, m.Sender.Pic
		}
		if m.Chat != nil {
			v.ChatName, v.ChatUpdatedAt = m.Chat.ChatName, m.Chat.UpdatedAt.UnixNano()
			for _, u := range m.Chat.Users {
				v.Members = append(v.Members, u.Id)
			}
		}
		versions = append(versions, v)
	}
	return versions
}

// respondCached writes payload with a weak ETag computed from version. If the client already has that version, only
// 304 is sent.
func respondCached(w http.ResponseWriter, r *http.Request, version interface{}, payload interface{}) {
	hash, err := hashstructure.Hash(version, hashstructure.FormatV2, nil)
	if err != nil {
		respondJSON(w, http.StatusOK, payload)
		return
	}
	etag := fmt.Sprintf(`W/"%x"`, hash)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}
