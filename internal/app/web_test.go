// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayRecorder struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (r *relayRecorder) relay(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cmds = append(r.cmds, c)
	return nil
}

func (r *relayRecorder) commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStatusEndpoint(t *testing.T) {
	rec := &relayRecorder{}
	ws := newWebServer(rec.relay)
	srv := httptest.NewServer(ws.routes(""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/odometer")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.Error(t, ws.setStatus([]byte("{broken")))
	require.NoError(t, ws.setStatus([]byte(`{"mode":"Trip1"}`)))

	resp, err = http.Get(srv.URL + "/api/odometer")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestCommandEndpoint(t *testing.T) {
	rec := &relayRecorder{}
	srv := httptest.NewServer(newWebServer(rec.relay).routes(""))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(`{"cmd":"reset","mode":"Trip3"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []Command{{Kind: CmdReset, Mode: "Trip3"}}, rec.commands())

	resp, err = http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(`{"cmd":"explode"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/command")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	rec.mu.Lock()
	rec.err = errors.New("broker down")
	rec.mu.Unlock()
	resp, err = http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(`{"cmd":"select"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestWebSocketStatusAndCommands(t *testing.T) {
	rec := &relayRecorder{}
	ws := newWebServer(rec.relay)
	require.NoError(t, ws.setStatus([]byte(`{"speed_kmh":42}`)))
	srv := httptest.NewServer(ws.routes(""))
	defer srv.Close()

	conn := dialWS(t, srv)

	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "status", ev.Type)
	assert.JSONEq(t, `{"speed_kmh":42}`, string(ev.Status))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"select","mode":"Speed"}`)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "ack", ev.Type)
	assert.Equal(t, []Command{{Kind: CmdSelect, Mode: "Speed"}}, rec.commands())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"set_total","km":-1}`)))
	ev = wsEvent{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
	assert.NotEmpty(t, ev.Message)

	require.NoError(t, ws.setStatus([]byte(`{"speed_kmh":43}`)))
	ev = wsEvent{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "status", ev.Type)
	assert.JSONEq(t, `{"speed_kmh":43}`, string(ev.Status))
}
