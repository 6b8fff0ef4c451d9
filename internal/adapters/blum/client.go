package blum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	adhttp "github.com/ohmynofan/blum-farming-bot/internal/adapters/http"
	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
	"github.com/ohmynofan/blum-farming-bot/pkg/utils"
)

// ErrAlreadyClaimed is returned by ClaimDaily when today's reward was taken
// earlier. Schedulers treat it as a completed claim.
var ErrAlreadyClaimed = errors.New("daily reward already claimed")

const (
	authProviderPath = "/api/v1/auth/provider/PROVIDER_TELEGRAM_MINI_APP"
	authRefreshPath  = "/api/v1/auth/refresh"
	userMePath       = "/api/v1/user/me"
	balancePath      = "/api/v1/user/balance"
	dailyRewardPath  = "/api/v1/daily-reward"
	farmingClaimPath = "/api/v1/farming/claim"
	farmingStartPath = "/api/v1/farming/start"
	gamePlayPath     = "/api/v2/game/play"
	gameClaimPath    = "/api/v2/game/claim"
)

var alreadyClaimedMarkers = []string{"same day", "already claimed"}

type Client struct {
	api         *adhttp.APIClient
	dailyOffset int
}

func New(api *adhttp.APIClient, dailyOffsetMinutes int) *Client {
	return &Client{api: api, dailyOffset: dailyOffsetMinutes}
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type authResponse struct {
	Token tokenPair `json:"token"`
}

type userInfo struct {
	Username string `json:"username"`
}

type farmingData struct {
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	EarningsRate string `json:"earningsRate"`
	Balance      string `json:"balance"`
}

type balanceResponse struct {
	AvailableBalance string       `json:"availableBalance"`
	PlayPasses       int          `json:"playPasses"`
	Timestamp        int64        `json:"timestamp"`
	Farming          *farmingData `json:"farming"`
}

type gameResponse struct {
	GameID string `json:"gameId"`
}

type dailyQuery struct {
	Offset int `url:"offset"`
}

func (c *Client) userURL(path string) string {
	return strings.TrimRight(c.api.Service.UserAPI, "/") + path
}

func (c *Client) gameURL(path string) string {
	return strings.TrimRight(c.api.Service.GameAPI, "/") + path
}

// Authenticate exchanges Telegram web app data for a fresh credential.
func (c *Client) Authenticate(ctx context.Context, webAppData string) (model.Credential, error) {
	var resp authResponse
	err := c.api.Fetch(ctx, c.userURL(authProviderPath), &adhttp.FetchOptions{
		Method:    http.MethodPost,
		Body:      map[string]string{"query": webAppData},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return model.Credential{}, err
	}
	return model.Credential{Access: resp.Token.Access, Refresh: resp.Token.Refresh}, nil
}

// Refresh trades a refresh token for a new credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.Credential, error) {
	var resp tokenPair
	err := c.api.Fetch(ctx, c.userURL(authRefreshPath), &adhttp.FetchOptions{
		Method:    http.MethodPost,
		Body:      map[string]string{"refresh": refreshToken},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return model.Credential{}, err
	}
	return model.Credential{Access: resp.Access, Refresh: resp.Refresh}, nil
}

func (c *Client) Me(ctx context.Context) (string, error) {
	var resp userInfo
	if err := c.api.Fetch(ctx, c.userURL(userMePath), nil, &resp); err != nil {
		return "", err
	}
	return resp.Username, nil
}

func (c *Client) Balance(ctx context.Context) (model.Balance, error) {
	var resp balanceResponse
	if err := c.api.Fetch(ctx, c.gameURL(balancePath), nil, &resp); err != nil {
		return model.Balance{}, err
	}
	return resp.toModel(), nil
}

// ClaimDaily claims the daily reward. A rejection saying the reward was
// already taken today is reported as ErrAlreadyClaimed.
func (c *Client) ClaimDaily(ctx context.Context) error {
	params, err := utils.EncodeURLParams(dailyQuery{Offset: c.dailyOffset})
	if err != nil {
		return err
	}
	err = c.api.Fetch(ctx, c.gameURL(dailyRewardPath)+"?"+params, &adhttp.FetchOptions{Method: http.MethodPost}, nil)
	if err == nil {
		return nil
	}
	var httpErr *adhttp.HTTPError
	if errors.As(err, &httpErr) && isAlreadyClaimed(httpErr) {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, strings.TrimSpace(string(httpErr.Body)))
	}
	return err
}

// isAlreadyClaimed matches only the service's same-day rejection. Auth,
// permission and rate-limit responses stay ordinary failures whatever their
// body says.
func isAlreadyClaimed(err *adhttp.HTTPError) bool {
	if err.StatusCode != http.StatusBadRequest {
		return false
	}
	body := strings.ToLower(string(err.Body))
	for _, marker := range alreadyClaimedMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// ClaimFarming ends the current farm window and returns the updated balance.
func (c *Client) ClaimFarming(ctx context.Context) (model.Balance, error) {
	var resp balanceResponse
	if err := c.api.Fetch(ctx, c.gameURL(farmingClaimPath), &adhttp.FetchOptions{Method: http.MethodPost}, &resp); err != nil {
		return model.Balance{}, err
	}
	return resp.toModel(), nil
}

// StartFarming opens the next farm window.
func (c *Client) StartFarming(ctx context.Context) (model.FarmWindow, error) {
	var resp farmingData
	if err := c.api.Fetch(ctx, c.gameURL(farmingStartPath), &adhttp.FetchOptions{Method: http.MethodPost}, &resp); err != nil {
		return model.FarmWindow{}, err
	}
	if resp.EndTime == 0 {
		return model.FarmWindow{}, fmt.Errorf("farming start returned no window")
	}
	return resp.window(), nil
}

// PlayGame consumes one ticket and returns the round id.
func (c *Client) PlayGame(ctx context.Context) (string, error) {
	var resp gameResponse
	if err := c.api.Fetch(ctx, c.gameURL(gamePlayPath), &adhttp.FetchOptions{Method: http.MethodPost}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.GameID) == "" {
		return "", fmt.Errorf("game play returned empty game id")
	}
	return resp.GameID, nil
}

// ClaimGame submits the packed round result verbatim.
func (c *Client) ClaimGame(ctx context.Context, payload string) error {
	return c.api.Fetch(ctx, c.gameURL(gameClaimPath), &adhttp.FetchOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"payload": payload},
	}, nil)
}

func (f farmingData) window() model.FarmWindow {
	return model.FarmWindow{
		Start: time.UnixMilli(f.StartTime),
		End:   time.UnixMilli(f.EndTime),
	}
}

func (b balanceResponse) toModel() model.Balance {
	out := model.Balance{
		Available:  b.AvailableBalance,
		PlayPasses: b.PlayPasses,
	}
	if b.Timestamp > 0 {
		out.Timestamp = time.UnixMilli(b.Timestamp)
	}
	if b.Farming != nil && b.Farming.EndTime > 0 {
		w := b.Farming.window()
		out.Farming = &w
		out.FarmBalance = b.Farming.Balance
	}
	if out.Available == "" {
		out.Available = "0"
	}
	return out
}
