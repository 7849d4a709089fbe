package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tng25/lino/internal/domain"
)

type fakeSender struct {
	name  string
	err   error
	sent  []string
	calls int
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s},
		[]string{domain.EventClose, domain.EventBuy}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), domain.EventPartialSell, "TP1", "ignored"))
	assert.Zero(t, s.calls)

	require.NoError(t, n.Notify(context.Background(), domain.EventClose, "CLOSE", "delivered"))
	assert.Equal(t, []string{"CLOSE"}, s.sent)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), domain.EventCooldown, "T", "m"))
	assert.Equal(t, 1, s.calls)
}

func TestNotifyFilterToleratesUnknownEntries(t *testing.T) {
	s := &fakeSender{name: "fake"}
	// A misspelled entry is kept (and logged) rather than dropped, so the
	// filter still behaves as written.
	n := NewNotifier([]Sender{s},
		[]string{"colse", domain.EventBuy, " "}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), domain.EventClose, "CLOSE", "m"))
	assert.Zero(t, s.calls)

	require.NoError(t, n.Notify(context.Background(), domain.EventBuy, "BUY", "m"))
	assert.Equal(t, 1, s.calls)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.NotifyAll(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 1, good.calls)
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL

	require.NoError(t, s.Send(context.Background(), "SELL AAA", "hard_sl"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Contains(t, got["text"], "SELL AAA")
	assert.Contains(t, got["text"], "hard_sl")
}

func TestTelegramSenderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL

	err := s.Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
