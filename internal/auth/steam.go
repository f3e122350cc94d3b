package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultSteamAPIBase = "https://api.steampowered.com"

// SteamAuthority validates session tickets against the Steam Web API
// (ISteamUserAuth/AuthenticateUserTicket).
type SteamAuthority struct {
	apiKey  string
	appID   int64
	baseURL string
	client  *http.Client
}

// NewSteamAuthority returns an authority bound to the given publisher key and
// app id. Remote calls are bounded by timeout (also honoring any earlier
// context deadline).
func NewSteamAuthority(apiKey string, appID int64, timeout time.Duration) *SteamAuthority {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SteamAuthority{
		apiKey:  apiKey,
		appID:   appID,
		baseURL: defaultSteamAPIBase,
		client:  &http.Client{Timeout: timeout},
	}
}

type steamAuthResponse struct {
	Response struct {
		Params *struct {
			Result          string `json:"result"`
			SteamID         string `json:"steamid"`
			OwnerSteamID    string `json:"ownersteamid"`
			VACBanned       bool   `json:"vacbanned"`
			PublisherBanned bool   `json:"publisherbanned"`
		} `json:"params"`
		Error *struct {
			ErrorCode int    `json:"errorcode"`
			ErrorDesc string `json:"errordesc"`
		} `json:"error"`
	} `json:"response"`
}

func (a *SteamAuthority) CheckTicket(ctx context.Context, ticket string) (int64, error) {
	q := url.Values{}
	q.Set("key", a.apiKey)
	q.Set("appid", strconv.FormatInt(a.appID, 10))
	q.Set("ticket", ticket)

	reqURL := a.baseURL + "/ISteamUserAuth/AuthenticateUserTicket/v1/?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrAuthorityUnavailable, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	defer resp.Body.Close()

	// 403 means the publisher key itself was refused, not the player's
	// ticket; treat it as an operator problem rather than a rejection.
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrAuthorityUnavailable, resp.StatusCode)
	}

	var body steamAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrAuthorityUnavailable, err)
	}

	if body.Response.Error != nil {
		return 0, fmt.Errorf("%w: code %d (%s)",
			ErrTicketRejected, body.Response.Error.ErrorCode, body.Response.Error.ErrorDesc)
	}
	params := body.Response.Params
	if params == nil || params.Result != "OK" {
		return 0, ErrTicketRejected
	}
	if params.PublisherBanned {
		return 0, fmt.Errorf("%w: publisher banned", ErrTicketRejected)
	}

	steamID, err := strconv.ParseInt(params.SteamID, 10, 64)
	if err != nil || steamID <= 0 {
		return 0, fmt.Errorf("%w: bad steamid %q", ErrAuthorityUnavailable, params.SteamID)
	}
	return steamID, nil
}

// InsecureAuthority accepts any well-formed ticket and reads it as a literal
// decimal Steam id. It backs SKIP_STEAM_TICKET_VALIDATION for local
// development and tests; config refuses it in production.
type InsecureAuthority struct{}

func (InsecureAuthority) CheckTicket(_ context.Context, ticket string) (int64, error) {
	id, err := strconv.ParseInt(ticket, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTicketRejected
	}
	return id, nil
}
