// Package client provides a Go client library for the NoteScript API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/notevault/notescript/internal/engine"
	"github.com/notevault/notescript/internal/history"
	"github.com/notevault/notescript/internal/vault"
)

// Client is the NoteScript API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates a new NoteScript API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Evaluate runs a script against a vault.
func (c *Client) Evaluate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/eval", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListCapabilities returns the capability catalog.
func (c *Client) ListCapabilities(ctx context.Context) ([]string, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/capabilities", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result struct {
		Capabilities []string `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Capabilities, nil
}

// CreateVault creates a new vault.
func (c *Client) CreateVault(ctx context.Context, name string) (*vault.Vault, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/vaults", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result vault.Vault
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetVault returns one vault.
func (c *Client) GetVault(ctx context.Context, id string) (*vault.Vault, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/vaults/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result vault.Vault
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// CreateNote creates a note in a vault.
func (c *Client) CreateNote(ctx context.Context, vaultID string, note vault.Note) (*vault.Note, error) {
	body, err := json.Marshal(note)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/vaults/"+vaultID+"/notes", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result vault.Note
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListNotes lists the notes in a vault.
func (c *Client) ListNotes(ctx context.Context, vaultID string) ([]vault.Note, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/vaults/"+vaultID+"/notes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result struct {
		Notes []vault.Note `json:"notes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Notes, nil
}

// HistoryFilter is the filter for listing evaluation history.
type HistoryFilter struct {
	VaultID string
	Success *bool
	Limit   int
	Offset  int
}

// ListHistory lists evaluation records.
func (c *Client) ListHistory(ctx context.Context, filter HistoryFilter) ([]history.Record, error) {
	q := url.Values{}
	if filter.VaultID != "" {
		q.Set("vaultId", filter.VaultID)
	}
	if filter.Success != nil {
		q.Set("success", strconv.FormatBool(*filter.Success))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	path := "/api/v1/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result struct {
		Evaluations []history.Record `json:"evaluations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Evaluations, nil
}

// doRequest makes an authenticated HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseError parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, errResp.Error)
	}

	return fmt.Errorf("%s: %s", resp.Status, string(body))
}
