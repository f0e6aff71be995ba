package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/overachiever/overachiever-web/internal/auth"
	"github.com/overachiever/overachiever-web/internal/logger"
	"github.com/overachiever/overachiever-web/internal/scanqueue"
	"github.com/overachiever/overachiever-web/internal/services"
	syncengine "github.com/overachiever/overachiever-web/internal/sync"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin for development
		// In production, implement proper origin checking
		return true
	},
}

// clientMessage is what the browser sends over the socket.
type clientMessage struct {
	Action     string  `json:"action"`
	AppID      int64   `json:"appid,omitempty"`
	APIName    string  `json:"apiname,omitempty"`
	Rating     int     `json:"rating,omitempty"`
	Difficulty int     `json:"difficulty,omitempty"`
	Comment    *string `json:"comment,omitempty"`
	Tip        string  `json:"tip,omitempty"`
	From       *int64  `json:"from,omitempty"` // unix seconds
	To         *int64  `json:"to,omitempty"`
}

// serverMessage is a direct reply to the requesting connection. Scan
// lifecycle events go through the hub instead so every watcher sees them.
type serverMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	id      string
	steamID string
	handler *Handler
}

// Handler wires socket messages to the engine and stores.
type Handler struct {
	hub     *Hub
	orch    *syncengine.Orchestrator
	queue   *scanqueue.Queue
	games   *services.GameService
	history *services.HistoryService
	ratings *services.RatingService
	authSvc *auth.Service
	log     *logger.Log
}

func NewHandler(hub *Hub, orch *syncengine.Orchestrator, queue *scanqueue.Queue,
	games *services.GameService, history *services.HistoryService,
	ratings *services.RatingService, authSvc *auth.Service) *Handler {
	return &Handler{
		hub:     hub,
		orch:    orch,
		queue:   queue,
		games:   games,
		history: history,
		ratings: ratings,
		authSvc: authSvc,
		log:     logger.New(),
	}
}

func RegisterRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/ws", h.serveWS)
}

// serveWS authenticates the bearer token from the query string and upgrades
// the connection into the user's room.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authSvc.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		id:      uuid.NewString(),
		steamID: claims.SteamID,
		handler: h,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		// A gone connection stops watching its scan; a manual scan with no
		// watchers left is cancelled by the queue.
		c.handler.queue.Detach(c.steamID, c.id)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.handler.log.WithError(err).Warn("websocket read error")
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(serverMessage{Type: "error", Payload: "invalid message"})
			continue
		}
		c.handler.handle(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.handler.log.WithError(err).Warn("websocket write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Handler) handle(c *Client, msg clientMessage) {
	switch msg.Action {
	case "ping":
		c.reply(serverMessage{Type: "pong"})

	case "start_scan":
		adm := h.orch.Request(c.steamID, scanqueue.ReasonManual, c.id)
		switch adm.Status {
		case scanqueue.StatusRejected:
			c.reply(serverMessage{Type: "scan_rejected", Payload: adm.RejectReason})
		default:
			c.reply(serverMessage{Type: "scan_accepted", Payload: map[string]string{
				"ticket_id": adm.Ticket.ID,
				"status":    adm.Status.String(),
			}})
		}

	case "cancel_scan":
		h.queue.Detach(c.steamID, c.id)
		c.reply(serverMessage{Type: "scan_detached"})

	case "fetch_games":
		games, err := h.games.GetUserGames(c.steamID)
		if err != nil {
			h.log.WithError(err).Error("failed to fetch games")
			c.reply(serverMessage{Type: "error", Payload: "failed to fetch games"})
			return
		}
		c.reply(serverMessage{Type: "games", Payload: games})

	case "fetch_achievements":
		achievements, err := h.games.GetGameAchievements(c.steamID, msg.AppID)
		if err != nil {
			c.reply(serverMessage{Type: "error", Payload: "failed to fetch achievements"})
			return
		}
		c.reply(serverMessage{Type: "achievements", Payload: map[string]interface{}{
			"appid":        msg.AppID,
			"achievements": achievements,
		}})

	case "fetch_history":
		from, to := timeRange(msg.From, msg.To)
		snapshots, err := h.history.Query(c.steamID, from, to)
		if err != nil {
			c.reply(serverMessage{Type: "error", Payload: "failed to fetch history"})
			return
		}
		runs, err := h.history.QueryRuns(c.steamID)
		if err != nil {
			c.reply(serverMessage{Type: "error", Payload: "failed to fetch history"})
			return
		}
		c.reply(serverMessage{Type: "history", Payload: map[string]interface{}{
			"snapshots": snapshots,
			"runs":      runs,
		}})

	case "submit_rating":
		if err := h.ratings.UpsertRating(c.steamID, msg.AppID, msg.Rating, msg.Comment); err != nil {
			c.reply(serverMessage{Type: "error", Payload: err.Error()})
			return
		}
		c.reply(serverMessage{Type: "rating_submitted", Payload: map[string]int64{"appid": msg.AppID}})

	case "fetch_ratings":
		rating, err := h.ratings.GetCommunityRating(msg.AppID)
		if err != nil {
			c.reply(serverMessage{Type: "error", Payload: "failed to fetch ratings"})
			return
		}
		c.reply(serverMessage{Type: "ratings", Payload: rating})

	case "submit_tip":
		if err := h.ratings.AddTip(c.steamID, msg.AppID, msg.APIName, msg.Difficulty, msg.Tip); err != nil {
			c.reply(serverMessage{Type: "error", Payload: err.Error()})
			return
		}
		c.reply(serverMessage{Type: "tip_submitted"})

	case "fetch_tips":
		tips, err := h.ratings.GetTips(msg.AppID, msg.APIName)
		if err != nil {
			c.reply(serverMessage{Type: "error", Payload: "failed to fetch tips"})
			return
		}
		c.reply(serverMessage{Type: "tips", Payload: tips})

	default:
		c.reply(serverMessage{Type: "error", Payload: "unknown action: " + msg.Action})
	}
}

func timeRange(from, to *int64) (time.Time, time.Time) {
	var f, t time.Time
	if from != nil {
		f = time.Unix(*from, 0).UTC()
	}
	if to != nil {
		t = time.Unix(*to, 0).UTC()
	}
	return f, t
}
