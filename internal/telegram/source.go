package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"telegram-exporter/internal/domain"
)

// pageSize — размер одной страницы channels.getParticipants.
const pageSize = 200

// untitledChat — подпись для групп без названия.
const untitledChat = "Без названия"

// Contacts возвращает полный список контактов аккаунта.
func (c *Client) Contacts(ctx context.Context) ([]domain.Contact, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}

	var res tg.ContactsContactsClass
	err = c.do(ctx, "contacts.getContacts", func(ctx context.Context) error {
		var opErr error
		res, opErr = api.ContactsGetContacts(ctx, 0)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("contacts.getContacts: %w", err)
	}

	contacts, ok := res.(*tg.ContactsContacts)
	if !ok {
		// ContactsContactsNotModified без кеша означает пустой список.
		return nil, nil
	}

	result := make([]domain.Contact, 0, len(contacts.Users))
	for _, uc := range contacts.Users {
		u, ok := uc.(*tg.User)
		if !ok {
			continue
		}
		result = append(result, contactFromUser(u))
	}
	return result, nil
}

// Dialogs возвращает все личные диалоги: по одному на собеседника,
// с датой последнего сообщения и числом непрочитанных.
func (c *Client) Dialogs(ctx context.Context) ([]domain.Dialog, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}

	raw, err := c.fetchDialogs(ctx, api)
	if err != nil {
		return nil, err
	}

	users := indexUsers(raw.users)
	dates := indexTopMessageDates(raw.messages)

	var result []domain.Dialog
	for _, dc := range raw.dialogs {
		d, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}
		peer, ok := d.Peer.(*tg.PeerUser)
		if !ok {
			continue
		}
		u := users[peer.UserID]
		if u == nil {
			continue
		}

		result = append(result, domain.Dialog{
			ID:              u.ID,
			FirstName:       u.FirstName,
			LastName:        u.LastName,
			Username:        u.Username,
			Phone:           u.Phone,
			IsContact:       u.Contact,
			LastMessageDate: dates[msgKey{peerID: peer.UserID, msgID: d.TopMessage}],
			UnreadCount:     d.UnreadCount,
		})
	}
	return result, nil
}

// GroupChats возвращает список всех групп и каналов аккаунта.
// Участники здесь не запрашиваются: это отдельная, дорогая операция.
func (c *Client) GroupChats(ctx context.Context) ([]domain.GroupChat, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}

	raw, err := c.fetchDialogs(ctx, api)
	if err != nil {
		return nil, err
	}

	var result []domain.GroupChat
	for _, cc := range raw.chats {
		switch chat := cc.(type) {
		case *tg.Chat:
			result = append(result, domain.GroupChat{
				ID:    chat.ID,
				Title: orUntitled(chat.Title),
				Type:  "group",
			})
		case *tg.Channel:
			kind := "group"
			if chat.Broadcast {
				kind = "channel"
			}
			result = append(result, domain.GroupChat{
				ID:         chat.ID,
				Title:      orUntitled(chat.Title),
				Type:       kind,
				AccessHash: chat.AccessHash,
				IsChannel:  true,
			})
		}
	}
	return result, nil
}

// ChatMembers возвращает участников одной группы или канала единой
// выборкой, ограниченной MemberFetchLimit.
func (c *Client) ChatMembers(ctx context.Context, chat domain.GroupChat) ([]domain.ChatMember, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}

	var users []tg.UserClass
	if chat.IsChannel {
		users, err = c.channelParticipants(ctx, api, chat)
	} else {
		users, err = c.chatParticipants(ctx, api, chat)
	}
	if err != nil {
		return nil, err
	}

	members := make([]domain.ChatMember, 0, len(users))
	for _, uc := range users {
		u, ok := uc.(*tg.User)
		if !ok {
			continue
		}
		members = append(members, memberFromUser(chat, u))
	}
	return members, nil
}

func (c *Client) channelParticipants(ctx context.Context, api rawAPI, chat domain.GroupChat) ([]tg.UserClass, error) {
	var users []tg.UserClass
	offset := 0

	for offset < c.cfg.MemberFetchLimit {
		limit := pageSize
		if rest := c.cfg.MemberFetchLimit - offset; rest < limit {
			limit = rest
		}

		var res tg.ChannelsChannelParticipantsClass
		err := c.do(ctx, "channels.getParticipants", func(ctx context.Context) error {
			var opErr error
			res, opErr = api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
				Channel: &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
				Filter:  &tg.ChannelParticipantsSearch{Q: ""},
				Offset:  offset,
				Limit:   limit,
				Hash:    0,
			})
			return opErr
		})
		if err != nil {
			return nil, fmt.Errorf("channels.getParticipants(%d): %w", chat.ID, err)
		}

		page, ok := res.(*tg.ChannelsChannelParticipants)
		if !ok || len(page.Participants) == 0 {
			break
		}

		users = append(users, page.Users...)
		offset += len(page.Participants)
		if offset >= page.Count {
			break
		}
	}
	return users, nil
}

func (c *Client) chatParticipants(ctx context.Context, api rawAPI, chat domain.GroupChat) ([]tg.UserClass, error) {
	var full *tg.MessagesChatFull
	err := c.do(ctx, "messages.getFullChat", func(ctx context.Context) error {
		var opErr error
		full, opErr = api.MessagesGetFullChat(ctx, chat.ID)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("messages.getFullChat(%d): %w", chat.ID, err)
	}
	if len(full.Users) > int(c.cfg.MemberFetchLimit) {
		return full.Users[:c.cfg.MemberFetchLimit], nil
	}
	return full.Users, nil
}

// rawDialogs — содержимое одного ответа messages.getDialogs.
type rawDialogs struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
}

func (c *Client) fetchDialogs(ctx context.Context, api rawAPI) (*rawDialogs, error) {
	var res tg.MessagesDialogsClass
	err := c.do(ctx, "messages.getDialogs", func(ctx context.Context) error {
		var opErr error
		res, opErr = api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      c.cfg.DialogFetchLimit,
		})
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("messages.getDialogs: %w", err)
	}

	switch d := res.(type) {
	case *tg.MessagesDialogs:
		return &rawDialogs{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users}, nil
	case *tg.MessagesDialogsSlice:
		return &rawDialogs{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users}, nil
	default:
		return &rawDialogs{}, nil
	}
}

type msgKey struct {
	peerID int64
	msgID  int
}

func indexUsers(users []tg.UserClass) map[int64]*tg.User {
	index := make(map[int64]*tg.User, len(users))
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			index[u.ID] = u
		}
	}
	return index
}

func indexTopMessageDates(messages []tg.MessageClass) map[msgKey]string {
	index := make(map[msgKey]string, len(messages))
	for _, mc := range messages {
		m, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		index[msgKey{peerID: peerID(m.PeerID), msgID: m.ID}] = time.Unix(int64(m.Date), 0).UTC().Format(time.RFC3339)
	}
	return index
}

func peerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

func contactFromUser(u *tg.User) domain.Contact {
	return domain.Contact{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Phone:     u.Phone,
		IsBot:     u.Bot,
		IsContact: true,
	}
}

func memberFromUser(chat domain.GroupChat, u *tg.User) domain.ChatMember {
	return domain.ChatMember{
		ChatID:     chat.ID,
		ChatTitle:  chat.Title,
		ChatType:   chat.Type,
		UserID:     u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		Phone:      u.Phone,
		IsBot:      u.Bot,
		IsPremium:  u.Premium,
		IsVerified: u.Verified,
	}
}

func orUntitled(title string) string {
	if title == "" {
		return untitledChat
	}
	return title
}
