// Package oauthclient implements the two operations the token pool needs
// against Google's OAuth and loadCodeAssist endpoints: refreshing an access
// token, and backfilling project id / subscription tier metadata.
package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Result is the outcome of a successful refresh.
type Result struct {
	AccessToken  string
	ExpiresIn    int
	RefreshToken string // empty when upstream omitted it; caller retains the prior value
}

// Metadata is the outcome of a successful FetchMetadata call.
type Metadata struct {
	ProjectID string
	Tier      string
}

// AuthFailure wraps a non-2xx response from the OAuth or metadata endpoints.
type AuthFailure struct {
	HTTPStatus int
	Body       string
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("oauthclient: auth failure (status %d)", e.HTTPStatus)
}

// Client talks to oauth2.googleapis.com and cloudcode-pa's loadCodeAssist.
type Client struct {
	httpClient *http.Client
	config     *oauth2.Config
}

// New builds a Client with the fixed installed-app credentials this
// upstream requires.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		config: &oauth2.Config{
			ClientID:     ClientID,
			ClientSecret: ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  AuthEndpoint,
				TokenURL: TokenEndpoint,
			},
			Scopes: Scopes,
		},
	}
}

// Refresh exchanges refreshToken for a new access token. It uses
// golang.org/x/oauth2's TokenSource rather than a hand-rolled POST: the
// dependency is already required for exactly this purpose, and refresh is
// the one OAuth operation this module performs routinely (unlike the
// authorization-code exchange, which is out of scope).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Result, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if rerr, ok := err.(*oauth2.RetrieveError); ok {
			return Result{}, &AuthFailure{HTTPStatus: rerr.Response.StatusCode, Body: string(rerr.Body)}
		}
		return Result{}, err
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())
	newRefresh := tok.RefreshToken
	if newRefresh == refreshToken {
		// oauth2 echoes the input when upstream sends nothing new; surface
		// that as empty so callers apply the "retain prior token" rule
		// uniformly regardless of client library quirks.
		newRefresh = ""
	}
	return Result{AccessToken: tok.AccessToken, ExpiresIn: expiresIn, RefreshToken: newRefresh}, nil
}

// FetchMetadata calls loadCodeAssist to learn the caller's cloud project id
// and subscription tier.
func (c *Client) FetchMetadata(ctx context.Context, accessToken string) (Metadata, error) {
	url := APIEndpoint + "/" + APIVersion + ":loadCodeAssist"
	body, _ := json.Marshal(map[string]any{
		"cloudaicompanionProject": nil,
		"metadata":                json.RawMessage(ClientMetadata),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Metadata{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", APIUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Metadata{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Metadata{}, &AuthFailure{HTTPStatus: resp.StatusCode, Body: string(raw)}
	}

	var parsed struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
		CurrentTier             struct {
			ID string `json:"id"`
		} `json:"currentTier"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("oauthclient: decode metadata: %w", err)
	}
	return Metadata{ProjectID: parsed.CloudaicompanionProject, Tier: parsed.CurrentTier.ID}, nil
}
