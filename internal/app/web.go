// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsEvent is sent to browsers.
type wsEvent struct {
	Type    string          `json:"type"` // status, ack, error
	Status  json.RawMessage `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(ev wsEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.conn.WriteJSON(ev)
}

// webServer keeps the latest status and fans it out to websocket clients.
// Commands from browsers are handed to relay.
type webServer struct {
	relay func(Command) error

	mu      sync.RWMutex
	last    json.RawMessage
	clients map[*wsClient]struct{}
}

func newWebServer(relay func(Command) error) *webServer {
	return &webServer{relay: relay, clients: make(map[*wsClient]struct{})}
}

// setStatus stores a status payload and pushes it to every browser.
func (s *webServer) setStatus(payload []byte) error {
	if !json.Valid(payload) {
		return errors.New("web: status payload is not JSON")
	}
	raw := append(json.RawMessage(nil), payload...)

	s.mu.Lock()
	s.last = raw
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(wsEvent{Type: "status", Status: raw}); err != nil {
			log.Debug().Err(err).Msg("web: push to browser failed")
		}
	}
	return nil
}

func (s *webServer) routes(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/odometer", s.handleStatus)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/ws", s.handleWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (s *webServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(last)
}

func (s *webServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := ParseCommand(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.relay(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *webServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("web: websocket upgrade error")
		return
	}
	c := &wsClient{conn: conn}
	defer conn.Close()

	s.mu.Lock()
	s.clients[c] = struct{}{}
	last := s.last
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	if last != nil {
		if err := c.send(wsEvent{Type: "status", Status: last}); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("web: websocket closed")
			return
		}
		ev := wsEvent{Type: "ack"}
		cmd, err := ParseCommand(data)
		if err == nil {
			err = s.relay(cmd)
		}
		if err != nil {
			ev = wsEvent{Type: "error", Message: err.Error()}
		}
		if err := c.send(ev); err != nil {
			return
		}
	}
}

// RunWeb serves the live view and relays browser commands to the cluster
// over MQTT.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("web: config not initialized")
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	srv := newWebServer(func(cmd Command) error {
		return SendCommand(client, cfg.TopicCommand, cmd)
	})

	token := client.Subscribe(cfg.TopicOdometer, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := srv.setStatus(msg.Payload()); err != nil {
			log.Warn().Err(err).Msg("web: dropped status")
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("web: subscribe %s: %w", cfg.TopicOdometer, err)
	}
	log.Info().Str("topic", cfg.TopicOdometer).Msg("web: subscribed")

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           srv.routes("web"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", httpSrv.Addr).Msg("web: server listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
