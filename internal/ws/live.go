// Package ws bridges the broadcast fan-out to connected dashboard viewers.
// Each connection subscribes to its guild's channels for the lifetime of
// the socket; fan-out across server instances happens in Redis, so no
// in-process registry of clients is needed.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tempoboard/tempoboard/internal/broadcast"
	"github.com/tempoboard/tempoboard/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Message is the frame sent to viewers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SettingsReader supplies the full-state push sent on connect. Broadcast is
// at-most-once with no backlog, so a fresh viewer starts from pulled state.
type SettingsReader interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, models.Tier, models.CapabilitySet, error)
}

// SnapshotReader supplies the current queue snapshot for the initial push.
type SnapshotReader interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.QueueSnapshot, bool, error)
}

// Subscriber opens live event feeds, one per connection.
type Subscriber interface {
	Subscribe(ctx context.Context, tenantID uuid.UUID, topics ...string) *broadcast.Subscription
}

// LiveHandler upgrades dashboard connections and relays guild events.
type LiveHandler struct {
	subscriber Subscriber
	settings   SettingsReader
	snapshots  SnapshotReader
	upgrader   websocket.Upgrader
}

// NewLiveHandler creates a LiveHandler.
func NewLiveHandler(sub Subscriber, settings SettingsReader, snapshots SnapshotReader) *LiveHandler {
	return &LiveHandler{
		subscriber: sub,
		settings:   settings,
		snapshots:  snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Serve handles one viewer connection for tenantID. The caller has already
// authenticated the request and resolved the tenant.
func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "tenant_id", tenantID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.subscriber.Subscribe(ctx, tenantID, broadcast.TopicSettings, broadcast.TopicQueue)
	defer sub.Close()

	slog.Info("viewer connected", "tenant_id", tenantID, "remote_addr", r.RemoteAddr)

	// Reader: only control frames matter; any read error ends the session.
	go func() {
		defer cancel()
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.sendInitialState(ctx, conn, tenantID); err != nil {
		slog.Warn("initial state push failed", "tenant_id", tenantID, "error", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeMessage(conn, Message{Type: ev.Topic, Data: json.RawMessage(ev.Payload)}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) sendInitialState(ctx context.Context, conn *websocket.Conn, tenantID uuid.UUID) error {
	gs, tier, caps, err := h.settings.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := writeMessage(conn, Message{Type: "state", Data: map[string]any{
		"settings":     gs,
		"tier":         tier,
		"capabilities": caps,
	}}); err != nil {
		return err
	}

	snap, found, err := h.snapshots.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if found {
		return writeMessage(conn, Message{Type: "queue_state", Data: snap})
	}
	return nil
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
