package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const assertionTtl = 1 * time.Hour

// TokenFetcher performs the token exchange that opens a session.
type TokenFetcher interface {
	Fetch(ctx context.Context) (*Session, error)
}

// HttpClient is the subset of http.Client needed by this package.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PasswordTokenParams configures a PasswordTokenFetcher.
type PasswordTokenParams struct {
	HttpClient HttpClient `validate:"required"`
	Config     *Config    `validate:"required"`
	Backoff    backoff.BackOff
	Logger     *zap.Logger
}

// PasswordTokenFetcher exchanges username-password credentials for a session
// via the OAuth password grant. Remote auth errors are never retried (they
// are not transient); transport errors are retried on the configured backoff.
type PasswordTokenFetcher struct {
	httpClient HttpClient
	cfg        *Config
	backoff    backoff.BackOff
	logger     *zap.Logger
}

func NewPasswordTokenFetcher(p PasswordTokenParams) (*PasswordTokenFetcher, error) {
	if err := validator.New().Struct(p); err != nil {
		return nil, err
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}

	b := p.Backoff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &PasswordTokenFetcher{
		httpClient: p.HttpClient,
		cfg:        p.Config,
		backoff:    b,
		logger:     log.Named("SalesforceTokenFetcher"),
	}, nil
}

func (tf *PasswordTokenFetcher) Fetch(ctx context.Context) (*Session, error) {
	form := url.Values{}
	form.Add("grant_type", "password")
	form.Add("client_id", tf.cfg.ClientID)
	form.Add("client_secret", tf.cfg.ClientSecret)
	form.Add("username", tf.cfg.Username)
	form.Add("password", tf.cfg.Password)
	return fetchSession(ctx, tf.httpClient, tf.cfg.TokenEndpointURL, form, tf.backoff, tf.logger)
}

// JWTTokenParams configures a JWTTokenFetcher.
type JWTTokenParams struct {
	HttpClient       HttpClient `validate:"required"`
	TokenEndpointURL string     `validate:"required"`
	ClientID         string     `validate:"required"`
	Username         string     `validate:"required"`
	Audience         string     `validate:"required"`
	PrivateKeyPEM    []byte     `validate:"required"`
	Backoff          backoff.BackOff
	Logger           *zap.Logger
}

// JWTTokenFetcher exchanges a signed RS256 assertion for a session via the
// OAuth JWT bearer grant. Alternative to PasswordTokenFetcher for orgs that
// use a connected-app certificate instead of a password.
type JWTTokenFetcher struct {
	p       JWTTokenParams
	backoff backoff.BackOff
	logger  *zap.Logger
}

func NewJWTTokenFetcher(p JWTTokenParams) (*JWTTokenFetcher, error) {
	if err := validator.New().Struct(p); err != nil {
		return nil, err
	}
	b := p.Backoff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTTokenFetcher{p: p, backoff: b, logger: log.Named("SalesforceTokenFetcher")}, nil
}

func (tf *JWTTokenFetcher) Fetch(ctx context.Context) (*Session, error) {
	assertion, err := tf.generateAssertion()
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Add("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Add("assertion", assertion)
	return fetchSession(ctx, tf.p.HttpClient, tf.p.TokenEndpointURL, form, tf.backoff, tf.logger)
}

func (tf *JWTTokenFetcher) generateAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(tf.p.PrivateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("error parsing private key %w", err)
	}
	j := jwt.New(jwt.GetSigningMethod("RS256"))
	j.Claims = struct {
		jwt.RegisteredClaims
		Aud string `json:"aud,omitempty"`
	}{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tf.p.ClientID,
			Subject:   tf.p.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(assertionTtl)),
			ID:        uuid.New().String(),
		},
		Aud: tf.p.Audience,
	}
	tok, err := j.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("error generating salesforce assertion %w", err)
	}
	return tok, nil
}

// fetchSession posts the grant form to the token endpoint and maps the
// response. Remote-reported auth failures are wrapped backoff.Permanent so
// only transport errors are retried.
func fetchSession(ctx context.Context, client HttpClient, endpoint string, form url.Values, b backoff.BackOff, log *zap.Logger) (*Session, error) {
	return backoff.RetryWithData[*Session](func() (*Session, error) {
		s, err := exchangeToken(ctx, client, endpoint, form)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				log.Error("token exchange rejected", zap.String("remote_code", apiErr.RemoteCode))
				return nil, backoff.Permanent(err)
			}
			log.Warn("token exchange transport failure", zap.Error(err))
			return nil, err
		}
		return s, nil
	}, backoff.WithContext(b, ctx))
}

func exchangeToken(ctx context.Context, client HttpClient, endpoint string, form url.Values) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("unable to create token request: %w", err)
	}
	req.Header = http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to send token request: %w", err)
	}
	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var remote tokenErrorResponse
		if err := json.Unmarshal(resBody, &remote); err != nil || remote.Error == "" {
			return nil, &APIError{Kind: KindGeneric, Message: string(resBody), StatusCode: resp.StatusCode}
		}
		return nil, mapTokenError(resp.StatusCode, remote.Error, remote.ErrorDescription)
	}

	var tok tokenResponse
	if err := json.Unmarshal(resBody, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &APIError{Kind: KindGeneric, Message: "token response missing access_token", StatusCode: resp.StatusCode}
	}
	return &Session{AccessToken: tok.AccessToken, InstanceURL: tok.InstanceURL}, nil
}
