// Package steam implements provider.Client against the Steam Web API.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/overachiever/overachiever-web/internal/provider"
)

const (
	pathOwnedGames   = "/IPlayerService/GetOwnedGames/v1/"
	pathSchema       = "/ISteamUserStats/GetSchemaForGame/v2/"
	pathAchievements = "/ISteamUserStats/GetPlayerAchievements/v1/"
)

type Client struct {
	apiKey      string
	baseURL     string
	callTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(apiKey, baseURL string, callTimeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.steampowered.com"
	}
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		callTimeout: callTimeout,
		httpClient:  &http.Client{},
	}
}

func (c *Client) FetchLibrary(ctx context.Context, steamID string) ([]provider.LibraryGame, error) {
	params := url.Values{}
	params.Set("steamid", steamID)
	params.Set("include_appinfo", "1")
	params.Set("include_played_free_games", "1")

	var body struct {
		Response struct {
			Games []provider.LibraryGame `json:"games"`
		} `json:"response"`
	}
	if err := c.get(ctx, "fetch_library", pathOwnedGames, params, &body); err != nil {
		return nil, err
	}
	return body.Response.Games, nil
}

func (c *Client) FetchSchema(ctx context.Context, appID int64) ([]provider.SchemaEntry, error) {
	params := url.Values{}
	params.Set("appid", fmt.Sprintf("%d", appID))

	var body struct {
		Game struct {
			AvailableGameStats struct {
				Achievements []provider.SchemaEntry `json:"achievements"`
			} `json:"availableGameStats"`
		} `json:"game"`
	}
	if err := c.get(ctx, "fetch_schema", pathSchema, params, &body); err != nil {
		return nil, err
	}
	return body.Game.AvailableGameStats.Achievements, nil
}

func (c *Client) FetchUnlocks(ctx context.Context, steamID string, appID int64) ([]provider.Unlock, error) {
	params := url.Values{}
	params.Set("steamid", steamID)
	params.Set("appid", fmt.Sprintf("%d", appID))

	var body struct {
		PlayerStats struct {
			Success      bool `json:"success"`
			Achievements []struct {
				APIName    string `json:"apiname"`
				Achieved   int    `json:"achieved"`
				UnlockTime int64  `json:"unlocktime"`
			} `json:"achievements"`
		} `json:"playerstats"`
	}
	if err := c.get(ctx, "fetch_unlocks", pathAchievements, params, &body); err != nil {
		return nil, err
	}

	unlocks := make([]provider.Unlock, 0, len(body.PlayerStats.Achievements))
	for _, a := range body.PlayerStats.Achievements {
		u := provider.Unlock{
			APIName:  a.APIName,
			Achieved: a.Achieved == 1,
		}
		if a.UnlockTime > 0 {
			t := time.Unix(a.UnlockTime, 0).UTC()
			u.UnlockTime = &t
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params.Set("key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &provider.Error{Kind: provider.KindTransient, Op: op, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provider.Error{Kind: provider.KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		return &provider.Error{Kind: kind, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.Error{Kind: provider.KindMalformed, Op: op, Err: err}
	}
	return nil
}

// classifyStatus maps Steam's HTTP statuses onto the engine's taxonomy.
// Steam answers 400 for private profiles and games without stats, which is
// a final answer for this call, not a transient failure.
func classifyStatus(code int) (provider.ErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return 0, false
	case code == http.StatusTooManyRequests:
		return provider.KindRateLimited, true
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return provider.KindUnauthorized, true
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		return provider.KindNotFound, true
	default:
		return provider.KindTransient, true
	}
}
