package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/timebankhq/timebank-go/internal/realtime"
	"github.com/timebankhq/timebank-go/internal/session"
	"github.com/timebankhq/timebank-go/shared/contracts"
)

type fakeSocket struct {
	state     realtime.State
	openPath  string
	openToken string
	policy    realtime.Policy
	handler   realtime.Handler
	sent      []interface{}
	closeCode int
	sendOK    bool
}

func (f *fakeSocket) Open(path, token string, handler realtime.Handler, policy realtime.Policy) {
	if path == "" {
		return
	}
	f.openPath = path
	f.openToken = token
	f.handler = handler
	f.policy = policy
}

func (f *fakeSocket) Send(v interface{}) bool {
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, v)
	return true
}

func (f *fakeSocket) Close(code int, reason string) {
	f.closeCode = code
	f.state = realtime.StateClosed
}

func (f *fakeSocket) State() realtime.State { return f.state }

func msg(id, senderID contracts.ID, content string) contracts.ChatMessage {
	return contracts.ChatMessage{ID: id, SenderID: senderID, Content: content, CreatedAt: time.Now()}
}

func TestStartOpensConversationPath(t *testing.T) {
	sock := &fakeSocket{}
	c := NewConsumer("42", session.New("7", "tok"), sock)

	c.Start(realtime.Policy{Interval: time.Second})

	assert.Equal(t, "/ws/chat/42/", sock.openPath)
	assert.Equal(t, "tok", sock.openToken)
	assert.Equal(t, time.Second, sock.policy.Interval)
}

func TestStartWithoutExchangeIsNoOp(t *testing.T) {
	sock := &fakeSocket{}
	c := NewConsumer("", session.New("7", "tok"), sock)

	c.Start(realtime.DefaultPolicy())

	assert.Empty(t, sock.openPath)
}

func TestSnapshotReplacesWholesale(t *testing.T) {
	sock := &fakeSocket{}
	c := NewConsumer("42", session.New("7", "tok"), sock)

	c.HandleFrame(contracts.ChatAppendFrame{Message: msg("1", "7", "stale local")})
	c.HandleFrame(contracts.ChatSnapshotFrame{Messages: []contracts.ChatMessage{
		msg("10", "7", "first"),
		msg("11", "8", "second"),
	}})

	got := c.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
}

func TestAppendPreservesArrivalOrder(t *testing.T) {
	sock := &fakeSocket{}
	c := NewConsumer("42", session.New("7", "tok"), sock)

	c.HandleFrame(contracts.ChatSnapshotFrame{Messages: []contracts.ChatMessage{msg("1", "7", "a")}})
	c.HandleFrame(contracts.ChatAppendFrame{Message: msg("2", "8", "b")})
	c.HandleFrame(contracts.ChatAppendFrame{Message: msg("3", "7", "c")})

	got := c.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"},
		[]string{got[0].Content, got[1].Content, got[2].Content})
}

func TestNonChatFramesAreIgnored(t *testing.T) {
	sock := &fakeSocket{}
	c := NewConsumer("42", session.New("7", "tok"), sock)

	c.HandleFrame(contracts.ExchangeDeltaFrame{Delta: contracts.ExchangeDelta{Status: "ACCEPTED"}})
	c.HandleFrame(contracts.UnknownFrame{Type: "typing_indicator"})

	assert.Empty(t, c.Messages())
}

func TestSubmitSkipsBlankAndDisconnected(t *testing.T) {
	sock := &fakeSocket{state: realtime.StateOpen, sendOK: true}
	c := NewConsumer("42", session.New("7", "tok"), sock)

	assert.False(t, c.Submit(context.Background(), ""))
	assert.False(t, c.Submit(context.Background(), "   \t\n"))

	sock.state = realtime.StateConnecting
	assert.False(t, c.Submit(context.Background(), "hello"))
	assert.Empty(t, sock.sent)

	sock.state = realtime.StateOpen
	assert.True(t, c.Submit(context.Background(), "hello"))
	require.Len(t, sock.sent, 1)
	assert.Equal(t, contracts.ChatOutbound{Message: "hello"}, sock.sent[0])
}

func TestSubmitHonorsRateLimit(t *testing.T) {
	sock := &fakeSocket{state: realtime.StateOpen, sendOK: true}
	c := NewConsumer("42", session.New("7", "tok"), sock,
		WithSendLimit(rate.NewLimiter(rate.Limit(1), 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.True(t, c.Submit(ctx, "one"))
	// The burst is spent; waiting for the next token outlives the context.
	assert.False(t, c.Submit(ctx, "two"))
	assert.Len(t, sock.sent, 1)
}

func TestStopClosesNormallyAndClears(t *testing.T) {
	sock := &fakeSocket{state: realtime.StateOpen}
	c := NewConsumer("42", session.New("7", "tok"), sock)
	c.HandleFrame(contracts.ChatAppendFrame{Message: msg("1", "7", "a")})

	c.Stop()

	assert.Equal(t, websocket.CloseNormalClosure, sock.closeCode)
	assert.Empty(t, c.Messages())
}

func TestMineNormalizesSenderIDs(t *testing.T) {
	sock := &fakeSocket{}
	c := NewConsumer("42", session.New("7", "tok"), sock)

	// A numeric sender_id on the wire normalizes to the same string form.
	var m contracts.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","sender_id":7,"content":"x"}`), &m))
	assert.True(t, c.Mine(m))

	assert.False(t, c.Mine(msg("2", "8", "y")))

	anon := NewConsumer("42", session.New("", ""), sock)
	assert.False(t, anon.Mine(msg("3", "", "z")))
}
