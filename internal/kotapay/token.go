package kotapay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// getToken returns a valid access token, fetching one from the vendor when
// the cache is cold or expired. Concurrent callers share a single fetch.
func (c *Client) getToken(ctx context.Context) (string, error) {
	return c.store.GetOrFill(ctx, c.config.TokenCacheKey, c.fetchToken)
}

// invalidateToken evicts the cached token so the next request fetches a
// fresh one.
func (c *Client) invalidateToken() {
	c.store.Delete(c.config.TokenCacheKey)
}

// fetchToken performs the password grant exchange. The returned TTL is the
// vendor lifetime minus a safety buffer so the cache expires before the
// vendor does.
func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &AuthError{Message: "create token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &AuthError{Message: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{Message: "read token response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return "", 0, &AuthError{
			Message: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(body)),
			Status:  resp.StatusCode,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, &AuthError{Message: "unmarshal token response", Err: err}
	}
	if tr.AccessToken == "" {
		return "", 0, &AuthError{Message: "token response missing access_token"}
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	buffer := c.config.TokenExpiryBuffer
	if lifetime <= buffer {
		buffer = lifetime / 2
	}

	c.logger.Debug("access token refreshed", "expires_in", tr.ExpiresIn)

	return tr.AccessToken, lifetime - buffer, nil
}
