package kotapay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// vendorResponse is a decoded HTTP response from the Kotapay API.
type vendorResponse struct {
	status  int
	payload map[string]any
	raw     string
}

// send performs a single authenticated request. Connection-level failures
// come back as *NetworkError, non-2xx statuses as *VendorError. The body is
// decoded into a map; an unparsable body decodes to an empty map so callers
// never see partial state.
func (c *Client) send(ctx context.Context, method, path string, body any, query url.Values) (*vendorResponse, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	payload := map[string]any{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &payload); err != nil {
			payload = map[string]any{}
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &VendorError{Status: resp.StatusCode, Payload: payload, Raw: string(respBody)}
	}

	return &vendorResponse{status: resp.StatusCode, payload: payload, raw: string(respBody)}, nil
}
