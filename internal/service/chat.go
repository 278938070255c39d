package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/repository"
)

// maxMessageLength bounds a single chat message, in characters.
const maxMessageLength = 2000

// systemSenderName is shown for automated support messages.
const systemSenderName = "Support"

// ChatService handles messaging and unread tracking.
//
// Unread state is a per-(user, channel) read watermark: a message is unread
// when someone else wrote it after the watermark. Marking a channel read only
// ever advances the watermark.
type ChatService struct {
	pool     *pgxpool.Pool
	users    *repository.UserRepository
	chat     *repository.ChatRepository
	notifier Notifier
	now      func() time.Time
}

// NewChatService creates a new ChatService instance.
func NewChatService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	chat *repository.ChatRepository,
	notifier Notifier,
) *ChatService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ChatService{
		pool:     pool,
		users:    users,
		chat:     chat,
		notifier: notifier,
		now:      now,
	}
}

// Send posts a message.
//
// Users write to the general channel or to their own support thread. Admins
// write to the general channel or, with a recipient, to that user's support
// thread.
func (s *ChatService) Send(ctx context.Context, senderID int64, chatType model.ChatType, text string, recipientID *int64) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput("message must not be empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, invalidInput("message longer than %d characters", maxMessageLength)
	}
	if _, err := model.ParseChatType(string(chatType)); err != nil {
		return nil, invalidInput("%v", err)
	}

	sender, err := getUser(ctx, s.users, senderID, false)
	if err != nil {
		return nil, err
	}

	msg := model.ChatMessage{
		SenderID:   sender.ID,
		SenderName: sender.DisplayName(),
		ChatType:   chatType,
		Message:    text,
		IsAdmin:    sender.IsAdmin,
		SentAt:     s.now(),
	}

	switch {
	case chatType == model.ChatGeneral:
		// Broadcast; recipient ignored.
	case sender.IsAdmin:
		if recipientID == nil {
			return nil, invalidInput("support reply needs a recipient")
		}
		if _, err := getUser(ctx, s.users, *recipientID, false); err != nil {
			return nil, err
		}
		msg.RecipientID = recipientID
	default:
		// Users always write into their own thread, addressed to the admins.
	}

	stored, err := s.chat.Insert(ctx, msg)
	if err != nil {
		return nil, storageErr("send message", err)
	}

	log.Debug().
		Int64("sender_id", sender.ID).
		Str("chat_type", string(chatType)).
		Msg("Chat message sent")

	if chatType == model.ChatSupport && !sender.IsAdmin {
		s.notifier.Notify(ctx, fmt.Sprintf("Support message from %s (#%d): %s",
			sender.DisplayName(), sender.ID, truncate(text, 200)))
	}

	return stored, nil
}

// List returns the latest messages of a channel as seen by the user: the
// general channel, or the user's own support thread. Listing does not mark
// anything read.
func (s *ChatService) List(ctx context.Context, userID int64, chatType model.ChatType, limit int) ([]*model.ChatMessage, error) {
	limit = clampLimit(limit, 100, 500)

	var (
		msgs []*model.ChatMessage
		err  error
	)
	switch chatType {
	case model.ChatGeneral:
		msgs, err = s.chat.ListGeneral(ctx, limit)
	case model.ChatSupport:
		msgs, err = s.chat.ListSupportThread(ctx, userID, limit)
	default:
		return nil, invalidInput("unknown chat type %q", chatType)
	}
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

// UnreadCount returns the unread count for one channel, or with a nil
// chatType the sum over the general and support channels.
func (s *ChatService) UnreadCount(ctx context.Context, userID int64, chatType *model.ChatType) (int, error) {
	if chatType != nil {
		if _, err := model.ParseChatType(string(*chatType)); err != nil {
			return 0, invalidInput("%v", err)
		}
		n, err := s.chat.CountUnread(ctx, userID, *chatType)
		if err != nil {
			return 0, storageErr("count unread", err)
		}
		return n, nil
	}

	counts, err := s.UnreadBreakdown(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// UnreadBreakdown returns the unread count of every channel.
func (s *ChatService) UnreadBreakdown(ctx context.Context, userID int64) (map[model.ChatType]int, error) {
	counts := make(map[model.ChatType]int, len(model.ChatTypes()))
	for _, ct := range model.ChatTypes() {
		n, err := s.chat.CountUnread(ctx, userID, ct)
		if err != nil {
			return nil, storageErr("count unread", err)
		}
		counts[ct] = n
	}
	return counts, nil
}

// MarkRead advances the user's watermark for the channel to now and returns
// the stored watermark, which is never earlier than before the call.
func (s *ChatService) MarkRead(ctx context.Context, userID int64, chatType model.ChatType) (time.Time, error) {
	if _, err := model.ParseChatType(string(chatType)); err != nil {
		return time.Time{}, invalidInput("%v", err)
	}
	at, err := s.chat.AdvanceWatermark(ctx, userID, chatType, model.NoCounterpart, s.now())
	if err != nil {
		return time.Time{}, storageErr("mark read", err)
	}
	return at, nil
}

// InitializeUser materializes never-read watermarks for a new user inside the
// registration transaction.
func (s *ChatService) InitializeUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	err := s.chat.WithTx(tx).InitWatermarks(ctx, userID, model.NeverRead, model.ChatTypes()...)
	return storageErr("init watermarks", err)
}

// sendSystem posts an automated support message to a user using q.
func (s *ChatService) sendSystem(ctx context.Context, q *repository.ChatRepository, userID int64, text string) error {
	recipient := userID
	_, err := q.Insert(ctx, model.ChatMessage{
		SenderID:    model.SystemSenderID,
		SenderName:  systemSenderName,
		RecipientID: &recipient,
		ChatType:    model.ChatSupport,
		Message:     text,
		IsAdmin:     true,
		SentAt:      s.now(),
	})
	return storageErr("send system message", err)
}

// SendWelcomeTx posts the welcome message to a new user inside tx.
func (s *ChatService) SendWelcomeTx(ctx context.Context, tx pgx.Tx, userID int64, text string) error {
	return s.sendSystem(ctx, s.chat.WithTx(tx), userID, text)
}

// SendWelcomeToAll posts a support message to every non-admin user in one
// transaction. Returns the number of users messaged.
func (s *ChatService) SendWelcomeToAll(ctx context.Context, adminID int64, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, invalidInput("message must not be empty")
	}
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return 0, err
	}

	sent := 0
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		ids, err := s.users.WithTx(tx).ListIDs(ctx)
		if err != nil {
			return storageErr("list users", err)
		}
		chat := s.chat.WithTx(tx)
		for _, id := range ids {
			if err := s.sendSystem(ctx, chat, id, text); err != nil {
				return err
			}
		}
		sent = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int("users", sent).Msg("Welcome message sent to all users")
	return sent, nil
}

// Conversations lists support threads for the admin inbox, each with the
// number of messages the admin has not read.
func (s *ChatService) Conversations(ctx context.Context, adminID int64) ([]*model.Conversation, error) {
	threads, err := s.chat.Threads(ctx)
	if err != nil {
		return nil, storageErr("list threads", err)
	}
	counts, err := s.chat.CountUnreadByThread(ctx, adminID)
	if err != nil {
		return nil, storageErr("count unread threads", err)
	}
	for _, c := range threads {
		c.Unread = counts[c.UserID]
	}
	return threads, nil
}

// ConversationMessages returns a user's support thread for an admin.
func (s *ChatService) ConversationMessages(ctx context.Context, userID int64, limit int) ([]*model.ChatMessage, error) {
	if _, err := getUser(ctx, s.users, userID, false); err != nil {
		return nil, err
	}
	return s.List(ctx, userID, model.ChatSupport, limit)
}

// AdminMarkRead advances the admin's watermark for one user's support thread.
func (s *ChatService) AdminMarkRead(ctx context.Context, adminID, userID int64) (time.Time, error) {
	at, err := s.chat.AdvanceWatermark(ctx, adminID, model.ChatSupport, userID, s.now())
	if err != nil {
		return time.Time{}, storageErr("mark thread read", err)
	}
	return at, nil
}

// AdminUnreadCounts returns unread support messages per user thread.
func (s *ChatService) AdminUnreadCounts(ctx context.Context, adminID int64) (map[int64]int, error) {
	counts, err := s.chat.CountUnreadByThread(ctx, adminID)
	if err != nil {
		return nil, storageErr("count unread threads", err)
	}
	return counts, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
