package client

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/wsprd/pkg/events"
)

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		":keepalive",
		"",
		"event:tx.state",
		`data:{"from":"Idle","to":"Transmitting"}`,
		"",
		"event: tx.skipped",
		`data: {"reason":"busy"}`,
		"",
	}, "\n")

	out := make(chan events.Event, 4)
	require.NoError(t, readEvents(context.Background(), strings.NewReader(stream), out))
	close(out)

	var got []events.Event
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 2)

	require.Equal(t, events.TxState, got[0].Name)
	st, err := events.DecodeAs[events.TxStateEvent](got[0])
	require.NoError(t, err)
	require.Equal(t, "Transmitting", st.To)

	require.Equal(t, events.TxSkipped, got[1].Name)
	sk, err := events.DecodeAs[events.TxSkippedEvent](got[1])
	require.NoError(t, err)
	require.Equal(t, "busy", sk.Reason)
}

func TestUnquote(t *testing.T) {
	require.Equal(t, "beacon enabled", unquote(`"beacon enabled"`))
	require.Equal(t, "plain", unquote("plain\n"))
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetVersion()
	require.ErrorIs(t, err, ErrDaemonNotRunning)
}

func serveUnix(t *testing.T, h http.Handler) *Client {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "d.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)

	srv := &http.Server{Handler: h, ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return NewClient(sock)
}

func TestSendOverSocket(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"v1.2.3"`))
	})
	mux.HandleFunc("/enabled", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`"nope"`))
	})
	c := serveUnix(t, mux)

	v, err := c.GetVersion()
	require.NoError(t, err)
	require.Equal(t, "v1.2.3", v)

	_, err = c.SetEnabled(true)
	require.EqualError(t, err, "got 400: nope")

	_, err = c.Get("/nothing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Send("DELETE", "/version", "")
	require.Error(t, err)
}

func TestSubscribeEvents(t *testing.T) {
	c := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event:calibration.lock\ndata:{\"locked\":true}\n\n"))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []events.Event
	for ev := range c.SubscribeEvents(ctx) {
		got = append(got, ev)
	}

	require.Len(t, got, 1)
	lock, err := events.DecodeAs[events.CalibrationLockEvent](got[0])
	require.NoError(t, err)
	require.True(t, lock.Locked)
}
