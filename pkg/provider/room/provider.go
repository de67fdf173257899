// Package room defines the meeting-room provisioning contract.
//
// A provisioner creates the audio/video room a candidate will join. The
// interview core never inspects the join URL beyond passing it to the
// transport and the invitation email, so a simulated provisioner (returning a
// non-real URL) is a valid deployment when no room vendor is configured.
//
// Implementations must be safe for concurrent use.
package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Room describes one provisioned meeting room.
type Room struct {
	// JoinURL is the address the candidate (and the transport) connects to.
	JoinURL string `json:"join_url"`
}

// Provisioner creates meeting rooms for interview sessions.
type Provisioner interface {
	// CreateRoom provisions a room for the named candidate and role.
	CreateRoom(ctx context.Context, candidateName, role string) (Room, error)
}

// ─── HTTP-backed provisioner ──────────────────────────────────────────────────

// HTTPProvisioner provisions rooms through a vendor REST API
// (POST {baseURL}/rooms with a JSON body, expecting {"url": ...} back).
type HTTPProvisioner struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPOption is a functional option for [HTTPProvisioner].
type HTTPOption func(*HTTPProvisioner)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvisioner) {
		p.client = c
	}
}

// NewHTTP creates a room provisioner against the given vendor API.
func NewHTTP(baseURL, apiKey string, opts ...HTTPOption) (*HTTPProvisioner, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("room: baseURL must not be empty")
	}
	p := &HTTPProvisioner{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// createRoomRequest is the JSON payload sent to the vendor API.
type createRoomRequest struct {
	Name       string `json:"name"`
	Properties struct {
		ExpiresAt int64 `json:"exp,omitempty"`
	} `json:"properties"`
}

// createRoomResponse is the JSON payload returned by the vendor API.
type createRoomResponse struct {
	URL string `json:"url"`
}

// CreateRoom implements [Provisioner].
func (p *HTTPProvisioner) CreateRoom(ctx context.Context, candidateName, role string) (Room, error) {
	payload := createRoomRequest{Name: roomName(candidateName, role)}
	payload.Properties.ExpiresAt = time.Now().Add(4 * time.Hour).Unix()

	body, err := json.Marshal(payload)
	if err != nil {
		return Room{}, fmt.Errorf("room: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return Room{}, fmt.Errorf("room: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Room{}, fmt.Errorf("room: create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Room{}, fmt.Errorf("room: create: unexpected status %s", resp.Status)
	}

	var out createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Room{}, fmt.Errorf("room: decode response: %w", err)
	}
	if out.URL == "" {
		return Room{}, fmt.Errorf("room: response missing url")
	}
	return Room{JoinURL: out.URL}, nil
}

// ─── Simulated provisioner ────────────────────────────────────────────────────

// Simulated is a provisioner that fabricates join URLs without any external
// call. Used when no room vendor is configured; the core does not depend on
// URL realism.
type Simulated struct{}

// CreateRoom implements [Provisioner].
func (Simulated) CreateRoom(_ context.Context, candidateName, role string) (Room, error) {
	return Room{
		JoinURL: "https://rooms.invalid/" + roomName(candidateName, role),
	}, nil
}

// roomName derives a URL-safe room slug from the candidate and role.
func roomName(candidateName, role string) string {
	slug := strings.ToLower(candidateName + "-" + role)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r == ' ', r == '_', r == '.':
			return '-'
		default:
			return -1
		}
	}, slug)
	return url.PathEscape(strings.Trim(slug, "-"))
}
