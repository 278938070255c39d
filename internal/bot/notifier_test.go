package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"hr-portal/internal/config"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail int64
}

func (r *recordingSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	chat := to.(*tele.Chat)
	if chat.ID == r.fail {
		return nil, errors.New("forbidden")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[int64][]string)
	}
	r.sent[chat.ID] = append(r.sent[chat.ID], what.(string))
	return &tele.Message{}, nil
}

func TestNew_DisabledWithoutToken(t *testing.T) {
	n, err := New(config.NotifyConfig{AdminChatIDs: []int64{1}})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestNotifier_DeliversToEveryChat(t *testing.T) {
	s := &recordingSender{}
	n := newNotifier(s, []int64{10, 20})
	n.Start(context.Background())

	n.Notify(context.Background(), "first")
	n.Notify(context.Background(), "second")
	n.Stop()

	assert.Equal(t, []string{"first", "second"}, s.sent[10])
	assert.Equal(t, []string{"first", "second"}, s.sent[20])
}

func TestNotifier_FailingChatDoesNotBlockOthers(t *testing.T) {
	s := &recordingSender{fail: 10}
	n := newNotifier(s, []int64{10, 20})
	n.Start(context.Background())

	n.Notify(context.Background(), "hello")
	n.Stop()

	assert.Empty(t, s.sent[10])
	assert.Equal(t, []string{"hello"}, s.sent[20])
}

func TestNotifier_NotifyAfterStop(t *testing.T) {
	n := newNotifier(&recordingSender{}, []int64{1})
	n.Start(context.Background())
	n.Stop()

	assert.NotPanics(t, func() { n.Notify(context.Background(), "late") })
}

func TestNotifier_CancelDeliversQueued(t *testing.T) {
	s := &recordingSender{}
	n := newNotifier(s, []int64{10})

	n.Notify(context.Background(), "one")
	n.Notify(context.Background(), "two")
	n.Notify(context.Background(), "three")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Start(ctx)
	n.Stop()

	assert.Equal(t, []string{"one", "two", "three"}, s.sent[10])
}
