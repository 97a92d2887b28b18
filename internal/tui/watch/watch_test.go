package watch

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/relayd/internal/protocol"
)

func heartbeat(seq int) Item {
	return Item{
		Topic: "",
		Notification: protocol.Notification{
			Type:      "heartbeat",
			Data:      map[string]any{"message": "Heartbeat", "sequence": float64(seq), "active_sessions": float64(2)},
			Timestamp: 1700000000,
		},
		Received: time.Unix(1700000000, 0),
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "", Summary(nil))
	assert.Equal(t,
		`a=1 b="two words" c=1.5 d=null e={"x":true}`,
		Summary(map[string]any{
			"e": map[string]any{"x": true},
			"b": "two words",
			"a": float64(1),
			"c": 1.5,
			"d": nil,
		}))
}

func TestFormatLine(t *testing.T) {
	line := NewDefaultTheme().FormatLine(Item{
		Topic:        "session",
		Notification: protocol.Notification{Type: "session.created", Data: map[string]any{"username": "admin"}},
	})
	assert.Contains(t, line, "session")
	assert.Contains(t, line, "session.created")
	assert.Contains(t, line, "username=admin")

	noTopic := NewDefaultTheme().FormatLine(heartbeat(1))
	assert.Contains(t, noTopic, " - ")
}

func TestTypeStyle(t *testing.T) {
	theme := NewDefaultTheme()
	assert.Equal(t, theme.Heartbeat.Render("x"), theme.TypeStyle("heartbeat").Render("x"))
	assert.Equal(t, theme.Session.Render("x"), theme.TypeStyle("session.closed").Render("x"))
	assert.Equal(t, theme.Custom.Render("x"), theme.TypeStyle("maintenance").Render("x"))
}

func TestActivityDecay(t *testing.T) {
	var a Activity
	now := time.Unix(100, 0)
	a.OnItem(now)
	assert.Equal(t, 5, a.Lit())

	a.Decay(now.Add(3 * time.Second))
	assert.Equal(t, 4, a.Lit())
	a.Decay(now.Add(11 * time.Second))
	assert.Equal(t, 0, a.Lit())
	a.Decay(now.Add(20 * time.Second))
	assert.Equal(t, 0, a.Lit())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}

func TestModelRecordsItems(t *testing.T) {
	ch := make(chan Item)
	var m tea.Model = NewModel("tcp://127.0.0.1:5556", ch)

	m, cmd := m.Update(itemMsg(heartbeat(7)))
	require.NotNil(t, cmd)
	m, _ = m.Update(itemMsg(Item{Notification: protocol.Notification{Type: "session.created"}}))
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	wm := m.(Model)
	assert.Equal(t, 2, wm.Total())
	assert.Equal(t, 1, wm.Count("heartbeat"))
	assert.Equal(t, 1, wm.Count("session.created"))

	view := wm.View()
	assert.Contains(t, view, "RELAYD WATCH")
	assert.Contains(t, view, "#7")
	assert.Contains(t, view, "2 active sessions")
}

func TestModelInitialViewAndQuit(t *testing.T) {
	m := NewModel("tcp://x:1", make(chan Item))
	assert.True(t, strings.HasPrefix(m.View(), "Connecting to tcp://x:1"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
}

func TestModelClosedChannel(t *testing.T) {
	ch := make(chan Item)
	close(ch)
	msg := waitForItem(ch)()
	assert.Equal(t, closedMsg{}, msg)

	var m tea.Model = NewModel("tcp://x:1", ch)
	m, _ = m.Update(msg)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, m.View(), "DISCONNECTED")
}

func TestSubscribeLoopback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub := zmq4.NewPub(ctx)
	defer pub.Close()
	require.NoError(t, pub.Listen("tcp://127.0.0.1:0"))
	endpoint := "tcp://" + pub.Addr().String()

	out := make(chan Item, 8)
	subCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- Subscribe(subCtx, endpoint, "ops", out, nil)
	}()

	good, err := protocol.EncodeNotification(&protocol.Notification{Type: "maintenance", Timestamp: 1}, "ops")
	require.NoError(t, err)
	other, err := protocol.EncodeNotification(&protocol.Notification{Type: "ignored", Timestamp: 1}, "misc")
	require.NoError(t, err)

	// PUB drops until the subscription has propagated, so publish until one arrives.
	var got Item
	require.Eventually(t, func() bool {
		_ = pub.Send(zmq4.NewMsg(other))
		_ = pub.Send(zmq4.NewMsg(good))
		select {
		case got = <-out:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "ops", got.Topic)
	assert.Equal(t, "maintenance", got.Notification.Type)

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	for range out {
	}
}
