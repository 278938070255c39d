// Package bot delivers operational notifications to the portal admins over
// Telegram.
package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"hr-portal/internal/config"
)

// queueSize bounds notifications waiting for delivery. Newer messages are
// dropped when the queue is full.
const queueSize = 256

// sender is the part of *tele.Bot the notifier uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier sends short messages to a fixed set of admin chats. Messages are
// queued and delivered by a background worker so callers never wait on
// Telegram.
type Notifier struct {
	bot   sender
	chats []int64
	queue chan string

	wg   sync.WaitGroup
	once sync.Once
}

// New creates a Notifier from cfg. It returns nil, nil when notifications are
// not configured.
func New(cfg config.NotifyConfig) (*Notifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	pref := tele.Settings{
		Token:   cfg.TelegramToken,
		Offline: true,
	}
	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return newNotifier(teleBot, cfg.AdminChatIDs), nil
}

func newNotifier(s sender, chats []int64) *Notifier {
	return &Notifier{
		bot:   s,
		chats: chats,
		queue: make(chan string, queueSize),
	}
}

// Start launches the delivery worker. It stops when ctx is cancelled or
// Stop is called, delivering whatever is already queued before it exits.
func (n *Notifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				n.drain()
				return
			case text, ok := <-n.queue:
				if !ok {
					return
				}
				n.deliver(text)
			}
		}
	}()
	log.Info().Int("chats", len(n.chats)).Msg("Admin notifier started")
}

// Stop closes the queue, waits for pending messages to be delivered and
// returns.
func (n *Notifier) Stop() {
	n.once.Do(func() { close(n.queue) })
	n.wg.Wait()
}

// Notify queues text for delivery to every admin chat.
func (n *Notifier) Notify(_ context.Context, text string) {
	defer func() {
		// Notify after Stop is a no-op.
		_ = recover()
	}()
	select {
	case n.queue <- text:
	default:
		log.Warn().Str("text", text).Msg("Notification queue full, dropping message")
	}
}

// drain delivers the messages buffered in the queue without waiting for more.
func (n *Notifier) drain() {
	for {
		select {
		case text, ok := <-n.queue:
			if !ok {
				return
			}
			n.deliver(text)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(text string) {
	for _, id := range n.chats {
		if _, err := n.bot.Send(&tele.Chat{ID: id}, text); err != nil {
			log.Error().
				Err(err).
				Int64("chat_id", id).
				Msg("Failed to deliver admin notification")
		}
	}
}
