package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	// ErrNoToken means no session credential is available
	ErrNoToken = errors.New("no session token")
	// ErrMalformedToken means the credential is not a decodable JWT
	ErrMalformedToken = errors.New("malformed session token")
	// ErrTokenExpired means the credential's exp claim is in the past
	ErrTokenExpired = errors.New("session token expired")
	// ErrWrongTokenType means a refresh token was offered where an access token is needed
	ErrWrongTokenType = errors.New("session token is not an access token")
)

// Token types issued by the mail service
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims the mail service puts into its tokens
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// InspectToken decodes the claims of raw without verifying the signature.
// Only the server can verify; the client uses the claims to decide when to refresh.
func InspectToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// ValidateAccessToken reports whether raw is a usable, unexpired access token at now
func ValidateAccessToken(raw string, now time.Time) error {
	claims, err := InspectToken(raw)
	if err != nil {
		return err
	}
	if claims.TokenType != "" && claims.TokenType != TokenTypeAccess {
		return ErrWrongTokenType
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	return nil
}

// TokenFromPair builds an oauth2 token whose expiry follows the access token's exp claim
func TokenFromPair(access, refresh string) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  strings.TrimSpace(access),
		RefreshToken: strings.TrimSpace(refresh),
		TokenType:    "Bearer",
	}
	if claims, err := InspectToken(access); err == nil && claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
	}
	return tok
}

// Session stores the cached session token on disk
type Session struct {
	TokenPath string
}

// NewSession creates a session backed by tokenPath
func NewSession(tokenPath string) *Session {
	return &Session{TokenPath: tokenPath}
}

// LoadToken loads cached token from file
func (s *Session) LoadToken() (*oauth2.Token, error) {
	f, err := os.Open(s.TokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("could not decode session token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrNoToken
	}
	return token, nil
}

// SaveToken saves token to file
func (s *Session) SaveToken(token *oauth2.Token) error {
	if token == nil {
		return ErrNoToken
	}
	dir := filepath.Dir(s.TokenPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(s.TokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("could not save session token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// refresher exchanges the refresh token at POST {base}/auth/refresh
type refresher struct {
	ctx       context.Context
	endpoint  string
	hc        *http.Client
	onRefresh func(*oauth2.Token)

	mu      sync.Mutex
	refresh string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refresh == "" {
		return nil, ErrTokenExpired
	}
	q := url.Values{}
	q.Set("refresh_token", r.refresh)
	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost, r.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not refresh token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not refresh token: status %d", resp.StatusCode)
	}
	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("could not decode refreshed token: %w", err)
	}
	if body.AccessToken == "" {
		return nil, ErrMalformedToken
	}
	if body.RefreshToken == "" {
		body.RefreshToken = r.refresh
	}
	tok := TokenFromPair(body.AccessToken, body.RefreshToken)
	r.refresh = tok.RefreshToken
	if r.onRefresh != nil {
		r.onRefresh(tok)
	}
	return tok, nil
}

// NewTokenSource returns a token source that serves tok until it expires and then
// refreshes it against the mail service. onRefresh, if set, receives every new token.
func NewTokenSource(ctx context.Context, apiBaseURL string, tok *oauth2.Token, hc *http.Client, onRefresh func(*oauth2.Token)) oauth2.TokenSource {
	if hc == nil {
		hc = http.DefaultClient
	}
	r := &refresher{
		ctx:       ctx,
		endpoint:  strings.TrimRight(apiBaseURL, "/") + "/auth/refresh",
		hc:        hc,
		onRefresh: onRefresh,
	}
	if tok != nil {
		r.refresh = tok.RefreshToken
	}
	return oauth2.ReuseTokenSource(tok, r)
}

// CurrentAccessToken returns a validated access token from ts, or the reason there is none
func CurrentAccessToken(ts oauth2.TokenSource, now time.Time) (string, error) {
	if ts == nil {
		return "", ErrNoToken
	}
	tok, err := ts.Token()
	if err != nil {
		return "", err
	}
	if err := ValidateAccessToken(tok.AccessToken, now); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
