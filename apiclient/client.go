package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

const maxErrorBody = 4 << 10

// Error is a non-2xx API response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource func() (string, bool)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where ConfirmBranch reads the bearer token from,
// typically Manager.Token.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) { c.token = src }
}

// Client implements goSession.Authenticator, BranchConfirmer,
// TokenRefresher, SessionInvalidator and ProfileFetcher.
type Client struct {
	base  string
	http  *http.Client
	token TokenSource
}

var (
	_ goSession.Authenticator      = (*Client)(nil)
	_ goSession.BranchConfirmer    = (*Client)(nil)
	_ goSession.TokenRefresher     = (*Client)(nil)
	_ goSession.SessionInvalidator = (*Client)(nil)
	_ goSession.ProfileFetcher     = (*Client)(nil)
)

// New returns a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User          goSession.User           `json:"user"`
	Branches      []goSession.Branch       `json:"branches"`
	AcademicYears []goSession.AcademicYear `json:"academicYears,omitempty"`
	Token         string                   `json:"token"`
	RefreshToken  string                   `json:"refreshToken,omitempty"`
	TokenExpireAt int64                    `json:"tokenExpireAt,omitempty"`
}

// Authenticate exchanges credentials for a login payload.
func (c *Client) Authenticate(ctx context.Context, creds goSession.Credentials) (goSession.LoginInput, error) {
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Username: creds.Username, Password: creds.Password}, &out); err != nil {
		return goSession.LoginInput{}, err
	}
	return goSession.LoginInput{
		User:          out.User,
		Branches:      out.Branches,
		AcademicYears: out.AcademicYears,
		Token:         out.Token,
		RefreshToken:  out.RefreshToken,
		TokenExpireAt: out.TokenExpireAt,
	}, nil
}

// ConfirmBranch asks the server to scope the session to branchID.
func (c *Client) ConfirmBranch(ctx context.Context, branchID int64) error {
	token, err := c.bearer()
	if err != nil {
		return err
	}
	body := struct {
		BranchID int64 `json:"branch_id"`
	}{branchID}
	return c.do(ctx, http.MethodPost, "/auth/switch-branch", token, body, nil)
}

type refreshResponse struct {
	Token         string `json:"token"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	TokenExpireAt int64  `json:"tokenExpireAt,omitempty"`
}

// RefreshToken exchanges refreshToken for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (goSession.TokenPair, error) {
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{refreshToken}

	var out refreshResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", body, &out); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return goSession.TokenPair{}, fmt.Errorf("%w: %w", goSession.ErrRefreshTokenInvalid, err)
		}
		return goSession.TokenPair{}, err
	}
	return goSession.TokenPair{Token: out.Token, RefreshToken: out.RefreshToken, TokenExpireAt: out.TokenExpireAt}, nil
}

// Invalidate revokes token server-side.
func (c *Client) Invalidate(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

type profileResponse struct {
	User     goSession.User     `json:"user"`
	Branches []goSession.Branch `json:"branches"`
}

// FetchProfile loads the user owning token.
func (c *Client) FetchProfile(ctx context.Context, token string) (goSession.User, []goSession.Branch, error) {
	var out profileResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return goSession.User{}, nil, err
	}
	return out.User, out.Branches, nil
}

func (c *Client) bearer() (string, error) {
	if c.token == nil {
		return "", goSession.ErrNotAuthenticated
	}
	token, ok := c.token()
	if !ok {
		return "", goSession.ErrNotAuthenticated
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("apiclient: build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", path, err)
	}
	return nil
}
