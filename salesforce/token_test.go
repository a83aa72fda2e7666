package salesforce

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func validConfig() *Config {
	return &Config{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		Username:         "user@example.test",
		Password:         "hunter2",
		TokenEndpointURL: "https://login.salesforce.test/services/oauth2/token",
	}
}

func TestNewPasswordTokenFetcher(t *testing.T) {
	tests := []struct {
		name    string
		params  PasswordTokenParams
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name: "valid params",
			params: PasswordTokenParams{
				HttpClient: new(HttpClientMock),
				Config:     validConfig(),
			},
			wantErr: assert.NoError,
		},
		{
			name:    "http client missing",
			params:  PasswordTokenParams{Config: validConfig()},
			wantErr: assert.Error,
		},
		{
			name:    "config missing",
			params:  PasswordTokenParams{HttpClient: new(HttpClientMock)},
			wantErr: assert.Error,
		},
		{
			name: "config incomplete",
			params: PasswordTokenParams{
				HttpClient: new(HttpClientMock),
				Config:     &Config{ClientID: "client-id"},
			},
			wantErr: assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPasswordTokenFetcher(tt.params)
			tt.wantErr(t, err, "NewPasswordTokenFetcher()")
		})
	}
}

func TestPasswordTokenFetcher_Fetch(t *testing.T) {
	httpMock := new(HttpClientMock)
	httpMock.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		if req.Method != http.MethodPost {
			return false
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return false
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return false
		}
		return form.Get("grant_type") == "password" &&
			form.Get("client_id") == "client-id" &&
			form.Get("username") == "user@example.test"
	})).Return(jsonResponse(200, `{"access_token":"00Dxx!token","instance_url":"https://acme.my.salesforce.test"}`), nil)

	tf, err := NewPasswordTokenFetcher(PasswordTokenParams{HttpClient: httpMock, Config: validConfig()})
	assert.NoError(t, err)

	got, err := tf.Fetch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, &Session{AccessToken: "00Dxx!token", InstanceURL: "https://acme.my.salesforce.test"}, got)
	httpMock.AssertExpectations(t)
}

func TestPasswordTokenFetcher_RemoteErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind ErrorKind
	}{
		{
			name:     "bad username",
			body:     `{"error":"invalid_grant","error_description":"authentication failure"}`,
			wantKind: KindAuthenticationFailure,
		},
		{
			name:     "bad password",
			body:     `{"error":"invalid_password","error_description":"Invalid password"}`,
			wantKind: KindInvalidPassword,
		},
		{
			name:     "bad client id",
			body:     `{"error":"invalid_client_id","error_description":"client identifier invalid"}`,
			wantKind: KindInvalidClient,
		},
		{
			name:     "bad client secret",
			body:     `{"error":"invalid_client","error_description":"invalid client credentials"}`,
			wantKind: KindInvalidClient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpMock := newHttpClientMock(jsonResponse(400, tt.body), nil)
			// A zero constant backoff would retry forever if auth errors
			// were treated as transient.
			tf, err := NewPasswordTokenFetcher(PasswordTokenParams{
				HttpClient: httpMock,
				Config:     validConfig(),
				Backoff:    backoff.NewConstantBackOff(0),
			})
			assert.NoError(t, err)

			_, err = tf.Fetch(context.Background())

			assertKind(t, err, tt.wantKind)
			httpMock.AssertNumberOfCalls(t, "Do", 1)
		})
	}
}

func TestPasswordTokenFetcher_TransportErrorRetried(t *testing.T) {
	httpMock := new(HttpClientMock)
	httpMock.On("Do", mock.Anything).Return(nil, errors.New("connection reset")).Twice()
	httpMock.On("Do", mock.Anything).Return(
		jsonResponse(200, `{"access_token":"00Dxx!token","instance_url":"https://acme.my.salesforce.test"}`), nil).Once()

	tf, err := NewPasswordTokenFetcher(PasswordTokenParams{
		HttpClient: httpMock,
		Config:     validConfig(),
		Backoff:    backoff.NewConstantBackOff(0),
	})
	assert.NoError(t, err)

	got, err := tf.Fetch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "00Dxx!token", got.AccessToken)
	httpMock.AssertNumberOfCalls(t, "Do", 3)
}

func TestPasswordTokenFetcher_MissingAccessToken(t *testing.T) {
	httpMock := newHttpClientMock(jsonResponse(200, `{"instance_url":"https://acme.my.salesforce.test"}`), nil)
	tf, err := NewPasswordTokenFetcher(PasswordTokenParams{
		HttpClient: httpMock,
		Config:     validConfig(),
		Backoff:    &backoff.StopBackOff{},
	})
	assert.NoError(t, err)

	_, err = tf.Fetch(context.Background())

	assertKind(t, err, KindGeneric)
}

func testPrivateKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func TestJWTTokenFetcher_Fetch(t *testing.T) {
	httpMock := new(HttpClientMock)
	httpMock.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return false
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return false
		}
		return form.Get("grant_type") == "urn:ietf:params:oauth:grant-type:jwt-bearer" &&
			form.Get("assertion") != ""
	})).Return(jsonResponse(200, `{"access_token":"00Dxx!token","instance_url":"https://acme.my.salesforce.test"}`), nil)

	tf, err := NewJWTTokenFetcher(JWTTokenParams{
		HttpClient:       httpMock,
		TokenEndpointURL: "https://login.salesforce.test/services/oauth2/token",
		ClientID:         "client-id",
		Username:         "user@example.test",
		Audience:         "login.salesforce.test",
		PrivateKeyPEM:    testPrivateKeyPEM(t),
	})
	assert.NoError(t, err)

	got, err := tf.Fetch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "00Dxx!token", got.AccessToken)
	httpMock.AssertExpectations(t)
}

func TestJWTTokenFetcher_InvalidKey(t *testing.T) {
	tf, err := NewJWTTokenFetcher(JWTTokenParams{
		HttpClient:       new(HttpClientMock),
		TokenEndpointURL: "https://login.salesforce.test/services/oauth2/token",
		ClientID:         "client-id",
		Username:         "user@example.test",
		Audience:         "login.salesforce.test",
		PrivateKeyPEM:    []byte("not a pem"),
	})
	assert.NoError(t, err)

	_, err = tf.Fetch(context.Background())

	assert.Error(t, err)
}

func TestNewJWTTokenFetcher_Validation(t *testing.T) {
	_, err := NewJWTTokenFetcher(JWTTokenParams{HttpClient: new(HttpClientMock)})
	assert.Error(t, err)
}
