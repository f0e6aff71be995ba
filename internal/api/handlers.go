package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/overachiever/overachiever-web/internal/auth"
	"github.com/overachiever/overachiever-web/internal/logger"
	"github.com/overachiever/overachiever-web/internal/scanqueue"
	"github.com/overachiever/overachiever-web/internal/services"
	syncengine "github.com/overachiever/overachiever-web/internal/sync"
)

type Handler struct {
	orch    *syncengine.Orchestrator
	games   *services.GameService
	history *services.HistoryService
	ratings *services.RatingService
	users   *services.UserService
	log     *logger.Log
}

func NewHandler(orch *syncengine.Orchestrator, games *services.GameService,
	history *services.HistoryService, ratings *services.RatingService,
	users *services.UserService, log *logger.Log) *Handler {
	return &Handler{
		orch:    orch,
		games:   games,
		history: history,
		ratings: ratings,
		users:   users,
		log:     log,
	}
}

// RegisterRoutes attaches the authenticated API surface to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/profile", h.GetProfile).Methods("GET")
	r.HandleFunc("/games", h.ListGames).Methods("GET")
	r.HandleFunc("/games/{appid}/achievements", h.ListAchievements).Methods("GET")
	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/scan", h.StartScan).Methods("POST")
	r.HandleFunc("/ratings/{appid}", h.GetRatings).Methods("GET")
	r.HandleFunc("/ratings", h.SubmitRating).Methods("POST")
	r.HandleFunc("/tips/{appid}/{apiname}", h.GetTips).Methods("GET")
	r.HandleFunc("/tips", h.SubmitTip).Methods("POST")
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	user, err := h.users.GetBySteamID(claims.SteamID)
	if err != nil {
		h.serverError(w, err, "failed to load profile")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	games, err := h.games.GetUserGames(claims.SteamID)
	if err != nil {
		h.serverError(w, err, "failed to load games")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"games": games})
}

func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	appID, ok := pathAppID(w, r)
	if !ok {
		return
	}
	achievements, err := h.games.GetGameAchievements(claims.SteamID, appID)
	if err != nil {
		h.serverError(w, err, "failed to load achievements")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": achievements})
}

// GetHistory returns completion snapshots, optionally bounded by
// RFC 3339 "from" and "to" query parameters.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}

	snapshots, err := h.history.Query(claims.SteamID, from, to)
	if err != nil {
		h.serverError(w, err, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	adm := h.orch.Request(claims.SteamID, scanqueue.ReasonManual, "rest:"+claims.SteamID)
	switch adm.Status {
	case scanqueue.StatusAdmitted, scanqueue.StatusCoalesced:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    adm.Status.String(),
			"ticket_id": adm.Ticket.ID,
		})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": adm.Status.String(),
			"reason": adm.RejectReason,
		})
	}
}

func (h *Handler) GetRatings(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathAppID(w, r)
	if !ok {
		return
	}
	rating, err := h.ratings.GetCommunityRating(appID)
	if err != nil {
		h.serverError(w, err, "failed to load ratings")
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (h *Handler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	var req struct {
		AppID   int64   `json:"appid"`
		Rating  int     `json:"rating"`
		Comment *string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ratings.UpsertRating(claims.SteamID, req.AppID, req.Rating, req.Comment); err != nil {
		if err == services.ErrInvalidRating {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, err, "failed to save rating")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathAppID(w, r)
	if !ok {
		return
	}
	apiName := mux.Vars(r)["apiname"]
	tips, err := h.ratings.GetTips(appID, apiName)
	if err != nil {
		h.serverError(w, err, "failed to load tips")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tips": tips})
}

func (h *Handler) SubmitTip(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	var req struct {
		AppID      int64  `json:"appid"`
		APIName    string `json:"apiname"`
		Difficulty int    `json:"difficulty"`
		Tip        string `json:"tip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIName == "" || req.Tip == "" {
		writeError(w, http.StatusBadRequest, "apiname and tip are required")
		return
	}

	if err := h.ratings.AddTip(claims.SteamID, req.AppID, req.APIName, req.Difficulty, req.Tip); err != nil {
		h.serverError(w, err, "failed to save tip")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) serverError(w http.ResponseWriter, err error, msg string) {
	h.log.WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

func pathAppID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	appID, err := strconv.ParseInt(mux.Vars(r)["appid"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appid")
		return 0, false
	}
	return appID, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
