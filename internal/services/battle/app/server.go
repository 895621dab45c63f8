package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage"
	notificationsdomain "github.com/louisbranch/conquest.space/internal/services/notifications/domain"
	"github.com/louisbranch/conquest.space/internal/services/notifications/render"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/louisbranch/conquest.space/internal/platform/errors"
)

const maxRequestBytes = 1 << 20

// Inbox is the notifications surface served next to battles.
type Inbox interface {
	ListInbox(ctx context.Context, input notificationsdomain.ListInboxInput) (notificationsdomain.NotificationPage, error)
	UnreadCount(ctx context.Context, recipientUserID string) (int, error)
	MarkRead(ctx context.Context, recipientUserID string, notificationID string) (notificationsdomain.Notification, error)
}

// Server exposes the battle service over HTTP JSON.
type Server struct {
	service *Service
	inbox   Inbox
	tokens  TokenConfig
	logf    func(string, ...any)
}

// NewServer builds the HTTP surface. inbox may be nil.
func NewServer(service *Service, inbox Inbox, tokens TokenConfig) *Server {
	return &Server{service: service, inbox: inbox, tokens: tokens, logf: log.Printf}
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/battles", s.handleCreateBattle)
	api.HandleFunc("GET /v1/battles/{battleID}", s.handleGetBattle)
	api.HandleFunc("POST /v1/battles/{battleID}/attacks", s.handleAttack)
	api.HandleFunc("POST /v1/battles/{battleID}/resolve", s.handleResolve)
	api.HandleFunc("POST /v1/sweeps", s.handleSweep)
	api.HandleFunc("GET /v1/users/{userID}/stats", s.handleUserStats)
	api.HandleFunc("GET /v1/regions/{regionKey}", s.handleGetRegion)
	api.HandleFunc("PUT /v1/factions/{factionID}/members/{userID}", s.handlePutMembership)
	api.HandleFunc("GET /v1/notifications", s.handleListNotifications)
	api.HandleFunc("POST /v1/notifications/{notificationID}/read", s.handleMarkRead)
	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, apperrors.New(apperrors.CodeNotFound, "no route for "+r.Method+" "+r.URL.Path))
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/v1/", RequireSubject(s.tokens, api))
	return otelhttp.NewHandler(mux, "battle.http")
}

type battleJSON struct {
	ID                string     `json:"id"`
	RegionKey         string     `json:"region_key"`
	AttackerFactionID string     `json:"attacker_faction_id"`
	DefenderFactionID string     `json:"defender_faction_id,omitempty"`
	CurrentDefense    int64      `json:"current_defense"`
	InitialDefense    int64      `json:"initial_defense"`
	AttackerScore     int64      `json:"attacker_score"`
	DefenderScore     int64      `json:"defender_score"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	EndsAt            time.Time  `json:"ends_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

type strikeJSON struct {
	UserID       string    `json:"user_id"`
	Side         string    `json:"side"`
	Damage       int64     `json:"damage"`
	DefenseAfter int64     `json:"defense_after"`
	CreatedAt    time.Time `json:"created_at"`
}

func toBattleJSON(b domain.Battle) battleJSON {
	return battleJSON{
		ID:                b.ID,
		RegionKey:         b.RegionKey,
		AttackerFactionID: b.AttackerFactionID,
		DefenderFactionID: b.DefenderFactionID,
		CurrentDefense:    b.CurrentDefense,
		InitialDefense:    b.InitialDefense,
		AttackerScore:     b.AttackerScore,
		DefenderScore:     b.DefenderScore,
		Status:            string(b.Status),
		StartedAt:         b.StartedAt,
		EndsAt:            b.EndsAt,
		ResolvedAt:        b.ResolvedAt,
	}
}

type createBattleRequest struct {
	RegionKey         string `json:"region_key"`
	AttackerFactionID string `json:"attacker_faction_id"`
	InitialDefense    int64  `json:"initial_defense"`
	DurationSeconds   int64  `json:"duration_seconds"`
}

func (s *Server) handleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	battle, err := s.service.CreateBattle(r.Context(), CreateBattleInput{
		RegionKey:         req.RegionKey,
		AttackerFactionID: req.AttackerFactionID,
		InitialDefense:    req.InitialDefense,
		Duration:          time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBattleJSON(battle))
}

func (s *Server) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetBattle(r.Context(), r.PathValue("battleID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	strikes := make([]strikeJSON, 0, len(view.RecentStrikes))
	for _, entry := range view.RecentStrikes {
		strikes = append(strikes, strikeJSON{
			UserID:       entry.UserID,
			Side:         string(entry.Side),
			Damage:       entry.Damage,
			DefenseAfter: entry.DefenseAfter,
			CreatedAt:    entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		battleJSON
		RecentStrikes []strikeJSON `json:"recent_strikes"`
	}{toBattleJSON(view.Battle), strikes})
}

type attackRequest struct {
	UserID string `json:"user_id"`
	Side   string `json:"side"`
	Damage int64  `json:"damage"`
}

type attackResponse struct {
	BattleID       string `json:"battle_id"`
	CurrentDefense int64  `json:"current_defense"`
	AttackerScore  int64  `json:"attacker_score"`
	DefenderScore  int64  `json:"defender_score"`
	Status         string `json:"status"`
	Outcome        string `json:"outcome"`
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	var req attackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Attack(r.Context(), AttackInput{
		BattleID: r.PathValue("battleID"),
		Side:     side,
		Damage:   req.Damage,
		ActorID:  req.UserID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attackResponse{
		BattleID:       result.BattleID,
		CurrentDefense: result.CurrentDefense,
		AttackerScore:  result.AttackerScore,
		DefenderScore:  result.DefenderScore,
		Status:         string(result.Status),
		Outcome:        string(result.Outcome),
	})
}

type resolutionResponse struct {
	Status            string `json:"status"`
	CurrentDefense    int64  `json:"current_defense"`
	Outcome           string `json:"outcome"`
	RegionTransferred bool   `json:"region_transferred"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	resolution, err := s.service.Resolve(r.Context(), r.PathValue("battleID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse{
		Status:            string(resolution.Status),
		CurrentDefense:    resolution.CurrentDefense,
		Outcome:           string(resolution.Outcome),
		RegionTransferred: resolution.RegionTransferred,
	})
}

type sweepResponse struct {
	Scanned           int `json:"scanned"`
	Resolved          int `json:"resolved"`
	AlreadyResolved   int `json:"already_resolved"`
	StillActive       int `json:"still_active"`
	Failed            int `json:"failed"`
	RankingsProcessed int `json:"rankings_processed"`
	RankingsFailed    int `json:"rankings_failed"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.ResolveExpiredBattles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse(report))
}

type statsResponse struct {
	UserID              string `json:"user_id"`
	TotalDamageDealt    int64  `json:"total_damage_dealt"`
	BattlesFought       int64  `json:"battles_fought"`
	BattlesWon          int64  `json:"battles_won"`
	HighestDamageBattle int64  `json:"highest_damage_battle"`
	WinStreak           int64  `json:"win_streak"`
	CurrentRank         string `json:"current_rank"`
	RankScore           int64  `json:"rank_score"`
}

func toStatsResponse(stats domain.UserStats) statsResponse {
	return statsResponse{
		UserID:              stats.UserID,
		TotalDamageDealt:    stats.TotalDamageDealt,
		BattlesFought:       stats.BattlesFought,
		BattlesWon:          stats.BattlesWon,
		HighestDamageBattle: stats.HighestDamageBattle,
		WinStreak:           stats.WinStreak,
		CurrentRank:         stats.CurrentRank,
		RankScore:           stats.RankScore,
	}
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetUserStats(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

type regionResponse struct {
	Key                string     `json:"key"`
	OwnerFactionID     string     `json:"owner_faction_id,omitempty"`
	FortificationLevel int64      `json:"fortification_level"`
	LastConqueredAt    *time.Time `json:"last_conquered_at,omitempty"`
}

func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	region, err := s.service.GetRegion(r.Context(), r.PathValue("regionKey"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regionResponse{
		Key:                region.Key,
		OwnerFactionID:     region.OwnerFactionID,
		FortificationLevel: region.FortificationLevel,
		LastConqueredAt:    region.LastConqueredAt,
	})
}

type membershipRequest struct {
	Role string `json:"role"`
}

type membershipResponse struct {
	FactionID string    `json:"faction_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

func (s *Server) handlePutMembership(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role := storage.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	membership, err := s.service.PutMembership(r.Context(), r.PathValue("factionID"), r.PathValue("userID"), role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{
		FactionID: membership.FactionID,
		UserID:    membership.UserID,
		Role:      string(membership.Role),
		JoinedAt:  membership.JoinedAt,
	})
}

type notificationJSON struct {
	ID          string          `json:"id"`
	BattleID    string          `json:"battle_id"`
	FactionID   string          `json:"faction_id"`
	MessageType string          `json:"message_type"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

func toNotificationJSON(n notificationsdomain.Notification, loc render.Localizer) notificationJSON {
	payload := json.RawMessage(n.PayloadJSON)
	if !json.Valid(payload) {
		payload = json.RawMessage("{}")
	}
	rendered := render.Render(loc, render.Input{MessageType: n.MessageType, PayloadJSON: n.PayloadJSON})
	return notificationJSON{
		ID:          n.ID,
		BattleID:    n.BattleID,
		FactionID:   n.FactionID,
		MessageType: n.MessageType,
		Title:       rendered.Title,
		Body:        rendered.BodyText,
		Payload:     payload,
		CreatedAt:   n.CreatedAt,
		ReadAt:      n.ReadAt,
	}
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.fail(w, r, apperrors.New(apperrors.CodeNotFound, "notifications are not enabled"))
		return
	}
	userID, err := s.service.CurrentUserID(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pageSize := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil {
			s.fail(w, r, domain.InvalidInput("page_size", "page_size must be an integer"))
			return
		}
	}
	page, err := s.inbox.ListInbox(r.Context(), notificationsdomain.ListInboxInput{
		RecipientUserID: userID,
		PageSize:        pageSize,
		PageToken:       r.URL.Query().Get("page_token"),
	})
	if err != nil {
		s.fail(w, r, mapInboxError(err))
		return
	}
	unread, err := s.inbox.UnreadCount(r.Context(), userID)
	if err != nil {
		s.fail(w, r, mapInboxError(err))
		return
	}
	printer := render.PrinterFor(r.Header.Get("Accept-Language"))
	items := make([]notificationJSON, 0, len(page.Notifications))
	for _, n := range page.Notifications {
		items = append(items, toNotificationJSON(n, printer))
	}
	writeJSON(w, http.StatusOK, struct {
		Notifications []notificationJSON `json:"notifications"`
		NextPageToken string             `json:"next_page_token,omitempty"`
		Unread        int                `json:"unread"`
	}{items, page.NextPageToken, unread})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.fail(w, r, apperrors.New(apperrors.CodeNotFound, "notifications are not enabled"))
		return
	}
	userID, err := s.service.CurrentUserID(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	notification, err := s.inbox.MarkRead(r.Context(), userID, r.PathValue("notificationID"))
	if err != nil {
		s.fail(w, r, mapInboxError(err))
		return
	}
	writeJSON(w, http.StatusOK, toNotificationJSON(notification, render.PrinterFor(r.Header.Get("Accept-Language"))))
}

func mapInboxError(err error) error {
	switch {
	case errors.Is(err, notificationsdomain.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, "notification not found", err)
	case errors.Is(err, notificationsdomain.ErrNotificationIDRequired):
		return apperrors.WithMetadata(apperrors.CodeInvalidInput, err.Error(), map[string]string{"Field": "notification_id"})
	}
	return err
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperrors.WithMetadata(apperrors.CodeInvalidInput, fmt.Sprintf("decode request: %v", err), map[string]string{"Field": "body"})
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.GetCode(err) == apperrors.CodeUnknown {
		s.logf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, r, err)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{
		Code:    string(code),
		Message: apperrors.UserMessage(err, requestLocale(r)),
	})
}

func requestLocale(r *http.Request) string {
	raw := r.Header.Get("Accept-Language")
	if raw == "" {
		return ""
	}
	first, _, _ := strings.Cut(raw, ",")
	first, _, _ = strings.Cut(first, ";")
	return strings.TrimSpace(first)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
