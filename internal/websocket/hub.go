package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// LedgerUpdate is pushed to every connection of a player after a committed
// mutation.
type LedgerUpdate struct {
	Event         string           `json:"event"`
	Fuel          string           `json:"fuel"`
	Diamonds      string           `json:"diamonds"`
	DailyDiamonds string           `json:"daily_diamonds"`
	Minerals      map[string]int64 `json:"minerals"`
	Machines      int              `json:"machines"`
	ConfigVersion int64            `json:"config_version"`
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

// NewHub accepts upgrades from allowedOrigins; "*" or an empty list allows
// any origin.
func NewHub(logger logrus.FieldLogger, allowedOrigins []string) *Hub {
	h := &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) Register(playerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[playerID] == nil {
		h.clients[playerID] = make(map[*Client]struct{})
	}
	h.clients[playerID][client] = struct{}{}
}

func (h *Hub) Unregister(playerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[playerID] == nil {
		return
	}
	delete(h.clients[playerID], client)
	if len(h.clients[playerID]) == 0 {
		delete(h.clients, playerID)
	}
}

func (h *Hub) Connections(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[playerID])
}

// BroadcastLedger never blocks; a client whose buffer is full misses the
// update and catches up on the next one.
func (h *Hub) BroadcastLedger(playerID string, update LedgerUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.WithError(err).Error("encode ledger update")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[playerID] {
		select {
		case client.send <- payload:
		default:
			h.logger.WithField("player_id", playerID).Debug("dropping ledger update for slow client")
		}
	}
}
