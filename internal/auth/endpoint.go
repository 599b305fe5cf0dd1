package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alejoacosta74/paradex-api/internal/signer"
	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// Token is one issued bearer credential.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Zero reports whether no token has been issued.
func (t Token) Zero() bool {
	return t.Value == ""
}

// AuthFailureError is returned when the auth endpoint rejects a challenge or
// cannot be reached after bounded retries.
type AuthFailureError struct {
	Status  int
	Message string
}

func (e *AuthFailureError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth failure (status %d): %s", e.Status, e.Message)
	}
	return "auth failure: " + e.Message
}

// Endpoint is the external auth collaborator. The session is its only
// caller.
type Endpoint interface {
	// Authenticate submits a signed challenge and returns a bearer token.
	Authenticate(ctx context.Context, challenge *signer.SignedMessage, account string) (Token, error)
	// Onboard registers a new account with a signed onboarding record.
	Onboard(ctx context.Context, record *signer.SignedMessage, baseAccount, account, publicKey string) error
}

// defaultTokenTTL is assumed when the endpoint omits expires_in.
const defaultTokenTTL = 5 * time.Minute

// httpEndpoint talks to the exchange REST API.
type httpEndpoint struct {
	apiURL string
	client *http.Client
}

// NewEndpoint returns an Endpoint backed by the given REST base URL.
func NewEndpoint(apiURL string) Endpoint {
	return &httpEndpoint{
		apiURL: apiURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *httpEndpoint) Authenticate(ctx context.Context, challenge *signer.SignedMessage, account string) (Token, error) {
	ac, ok := challenge.Payload.(*signer.AuthChallenge)
	if !ok {
		return Token{}, &AuthFailureError{Message: "challenge payload is not an auth challenge"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+"/auth", nil)
	if err != nil {
		return Token{}, &AuthFailureError{Message: err.Error()}
	}
	req.Header.Set(paradex.HeaderStarknetAccount, account)
	req.Header.Set(paradex.HeaderStarknetSignature, challenge.Flatten())
	req.Header.Set(paradex.HeaderTimestamp, strconv.FormatInt(ac.Timestamp, 10))
	req.Header.Set(paradex.HeaderSignatureExpiration, strconv.FormatInt(ac.Expiry, 10))

	resp, err := e.client.Do(req)
	if err != nil {
		return Token{}, &AuthFailureError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Token{}, &AuthFailureError{Status: resp.StatusCode, Message: string(body)}
	}

	var ar paradex.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Token{}, &AuthFailureError{Message: "decoding auth response: " + err.Error()}
	}
	if ar.JWTToken == "" {
		return Token{}, &AuthFailureError{Message: "auth response without token"}
	}

	ttl := defaultTokenTTL
	if ar.ExpiresIn > 0 {
		ttl = time.Duration(ar.ExpiresIn) * time.Second
	}
	now := time.Now()
	return Token{Value: ar.JWTToken, IssuedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

func (e *httpEndpoint) Onboard(ctx context.Context, record *signer.SignedMessage, baseAccount, account, publicKey string) error {
	body := strings.NewReader(fmt.Sprintf(`{"public_key":%q}`, publicKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+"/onboarding", body)
	if err != nil {
		return &AuthFailureError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paradex.HeaderEthereumAccount, baseAccount)
	req.Header.Set(paradex.HeaderStarknetAccount, account)
	req.Header.Set(paradex.HeaderStarknetSignature, record.Flatten())

	resp, err := e.client.Do(req)
	if err != nil {
		return &AuthFailureError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	// Re-onboarding an existing account is not an error.
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(text), "already") {
		return nil
	}
	return &AuthFailureError{Status: resp.StatusCode, Message: string(text)}
}
