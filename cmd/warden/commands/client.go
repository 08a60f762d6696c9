package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MEKXH/warden/internal/config"
)

// gatewayClient talks to the control API of a running warden server. The
// gate and governor live in the server process, so approval and task
// commands always go over HTTP rather than touching state files.
type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newGatewayClient() (*gatewayClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &gatewayClient{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		token:   strings.TrimSpace(cfg.Gateway.Token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *gatewayClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s (is 'warden run' active?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("gateway: %s", apiErr.Message)
		}
		return fmt.Errorf("gateway: unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
