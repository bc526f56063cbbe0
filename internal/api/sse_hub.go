package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gortm/internal"
	"gortm/internal/progress"

	"github.com/go-chi/chi/v5"
)

// SSEClient represents a connected SSE client
type SSEClient struct {
	RunID   string
	Channel chan progress.Event
}

// SSEHub manages Server-Sent Events for run progress updates
type SSEHub struct {
	clients    map[string]map[chan progress.Event]bool
	clientsMu  sync.RWMutex
	register   chan SSEClient
	unregister chan SSEClient
	broadcast  chan progress.Event
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *internal.Logger
	keepAlive  time.Duration
}

// NewSSEHub creates a new SSE hub and starts its dispatch loop
func NewSSEHub() *SSEHub {
	hub := &SSEHub{
		clients:    make(map[string]map[chan progress.Event]bool),
		register:   make(chan SSEClient, 10),
		unregister: make(chan SSEClient, 10),
		broadcast:  make(chan progress.Event, 100),
		done:       make(chan struct{}),
		logger:     internal.DefaultLogger.With("SSE"),
		keepAlive:  30 * time.Second,
	}

	hub.wg.Add(1)
	go hub.run()
	return hub
}

// run processes SSE hub operations until Stop
func (h *SSEHub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			h.clientsMu.Lock()
			for runID, clients := range h.clients {
				for ch := range clients {
					close(ch)
				}
				delete(h.clients, runID)
			}
			h.clientsMu.Unlock()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.RunID] == nil {
				h.clients[client.RunID] = make(map[chan progress.Event]bool)
			}
			h.clients[client.RunID][client.Channel] = true
			h.logger.Debug("Client registered for run %s (total clients: %d)",
				client.RunID, len(h.clients[client.RunID]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.RunID]; exists {
				if clients[client.Channel] {
					delete(clients, client.Channel)
					close(client.Channel)
				}
				h.logger.Debug("Client unregistered from run %s (remaining clients: %d)",
					client.RunID, len(clients))
				if len(clients) == 0 {
					delete(h.clients, client.RunID)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.RunID] {
				select {
				case clientChan <- event:
				default:
					h.logger.Warn("Client channel full for run %s, skipping event", event.RunID)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Broadcast sends an event to all clients listening to a run
func (h *SSEHub) Broadcast(event progress.Event) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.logger.Warn("Broadcast channel full, dropping event: %s", event.EventType)
	}
}

// Stop ends the dispatch loop and closes every client channel
func (h *SSEHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

// HandleSSE streams progress events of the run named by the {runID} URL parameter
func (h *SSEHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run ID required"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan progress.Event, 10)
	select {
	case h.register <- SSEClient{RunID: runID, Channel: clientChan}:
	case <-h.done:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server shutting down"})
		return
	}
	defer func() {
		select {
		case h.unregister <- SSEClient{RunID: runID, Channel: clientChan}:
		case <-h.done:
		}
	}()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case event, open := <-clientChan:
			if !open {
				return
			}
			eventJSON, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("Failed to marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", eventJSON)
			flusher.Flush()
			if event.EventType == "finished" {
				return
			}

		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"status\":\"alive\",\"timestamp\":%q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

// GetClientCount returns the number of active clients for a run
func (h *SSEHub) GetClientCount(runID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[runID])
}
