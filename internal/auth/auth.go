package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"

	"github.com/overachiever/overachiever-web/config"
	"github.com/overachiever/overachiever-web/internal/logger"
	"github.com/overachiever/overachiever-web/internal/services"
)

const (
	sessionName   = "overachiever-session"
	steamOpenID   = "https://steamcommunity.com/openid/login"
	openIDNS      = "http://specs.openid.net/auth/2.0"
	identifierSel = "http://specs.openid.net/auth/2.0/identifier_select"
)

var ErrInvalidToken = errors.New("auth: invalid token")

type contextKey string

const claimsKey contextKey = "claims"

// Claims is the JWT payload issued after a successful Steam login.
type Claims struct {
	SteamID     string `json:"steam_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

type Service struct {
	secret      []byte
	tokenTTL    time.Duration
	callbackURL string
	store       *sessions.CookieStore
	users       *services.UserService
	log         *logger.Log
}

func NewService(cfg config.AuthConfig, users *services.UserService, log *logger.Log) *Service {
	return &Service{
		secret:      []byte(cfg.JWTSecret),
		tokenTTL:    cfg.TokenTTL,
		callbackURL: cfg.CallbackURL,
		store:       sessions.NewCookieStore([]byte(cfg.SessionSecret)),
		users:       users,
		log:         log,
	}
}

func (s *Service) IssueToken(steamID, displayName string) (string, error) {
	now := time.Now()
	claims := Claims{
		SteamID:     steamID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// LoginHandler redirects the browser to Steam's OpenID endpoint.
func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	realm := s.callbackURL
	if u, err := url.Parse(s.callbackURL); err == nil {
		realm = u.Scheme + "://" + u.Host
	}

	params := url.Values{}
	params.Set("openid.ns", openIDNS)
	params.Set("openid.mode", "checkid_setup")
	params.Set("openid.return_to", s.callbackURL)
	params.Set("openid.realm", realm)
	params.Set("openid.identity", identifierSel)
	params.Set("openid.claimed_id", identifierSel)

	http.Redirect(w, r, steamOpenID+"?"+params.Encode(), http.StatusFound)
}

// CallbackHandler completes the OpenID flow. Steam returns the claimed
// identity as a URL whose last path segment is the 64-bit Steam ID.
func (s *Service) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	steamID := steamIDFromClaimedID(r.URL.Query().Get("openid.claimed_id"))
	if steamID == "" {
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}

	displayName := "Player " + steamID
	user, err := s.users.GetOrCreate(steamID, displayName, nil)
	if err != nil {
		s.log.WithError(err).WithField("steam_id", steamID).Error("failed to create user on login")
		http.Redirect(w, r, "/?error=server_error", http.StatusFound)
		return
	}

	token, err := s.IssueToken(user.SteamID, user.DisplayName)
	if err != nil {
		s.log.WithError(err).Error("failed to issue token")
		http.Redirect(w, r, "/?error=server_error", http.StatusFound)
		return
	}

	session, _ := s.store.Get(r, sessionName)
	session.Values["steam_id"] = user.SteamID
	session.Values["display_name"] = user.DisplayName
	session.Save(r, w)

	http.Redirect(w, r, "/?token="+url.QueryEscape(token), http.StatusFound)
}

func (s *Service) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, sessionName)
	session.Options.MaxAge = -1
	session.Save(r, w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Middleware authenticates API requests. A bearer token takes priority;
// requests without one fall back to the login session cookie.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			claims, err := s.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
			return
		}

		session, _ := s.store.Get(r, sessionName)
		steamID, ok := session.Values["steam_id"].(string)
		if !ok || steamID == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		displayName, _ := session.Values["display_name"].(string)
		claims := &Claims{SteamID: steamID, DisplayName: displayName}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext returns the authenticated claims set by Middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

func steamIDFromClaimedID(claimedID string) string {
	if claimedID == "" {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(claimedID, "/"), "/")
	id := parts[len(parts)-1]
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}
