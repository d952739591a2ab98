package mastodon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dkoosis/amalgam/internal/config"
)

func testConfig() config.MastodonConfig {
	return config.MastodonConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AccessToken:  "app-token",
		Scopes:       config.DefaultScopes,
		RedirectURI:  config.DefaultRedirectURI,
		Tries:        3,
		Timeout:      5 * time.Second,
	}
}

func newInstance(t *testing.T, h http.HandlerFunc) (string, *http.Client) {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "https://"), srv.Client()
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func fastRetry() Option { return WithRetryDelay(time.Millisecond, 2*time.Millisecond) }

func TestCleanDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"mastodon.social", "mastodon.social"},
		{"https://mastodon.social", "mastodon.social"},
		{"http://mstdn.io/about", "mstdn.io"},
		{"  tomorrow.io ", "tomorrow.io"},
		{"https://localhost:8443/", "localhost:8443"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CleanDomain(tc.in), tc.in)
	}
}

func TestVerifyDomain_ReturnsCanonicalDomain_When_InstanceAnswers(t *testing.T) {
	t.Parallel()

	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/instance", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"domain": "mastodon.social", "title": "Mastodon"})
	})

	c := NewOAuthClient(testConfig(), zap.NewNop(), WithHTTPClient(client))
	got, err := c.VerifyDomain(context.Background(), "https://"+domain+"/explore")

	require.NoError(t, err)
	assert.Equal(t, "mastodon.social", got)
}

func TestVerifyDomain_FailsAndLogs_When_InstanceErrorsOrUnreachable(t *testing.T) {
	t.Parallel()

	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	logger, logs := observedLogger()
	c := NewOAuthClient(testConfig(), logger, WithHTTPClient(client))

	got, err := c.VerifyDomain(context.Background(), domain)
	assert.ErrorIs(t, err, ErrUnverifiedDomain)
	assert.Empty(t, got)
	assert.Equal(t, 1, logs.FilterMessageSnippet("could not verify").Len())

	_, err = c.VerifyDomain(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrUnverifiedDomain)
}

func TestAuthorizeURL_RequiresStartedClient(t *testing.T) {
	t.Parallel()

	c := NewOAuthClient(testConfig(), zap.NewNop())
	_, err := c.AuthorizeURL()
	assert.ErrorIs(t, err, ErrClientNotStarted)

	_, err = c.ExchangeCode(context.Background(), "code", 1)
	assert.ErrorIs(t, err, ErrClientNotStarted)
}

func TestAuthorizeURL_UsesOutOfBandRedirectAndScopes(t *testing.T) {
	t.Parallel()

	c := NewOAuthClient(testConfig(), zap.NewNop())
	require.NoError(t, c.StartAppClient("https://mstdn.social"))

	raw, err := c.AuthorizeURL()
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "mstdn.social", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "urn:ietf:wg:oauth:2.0:oob", q.Get("redirect_uri"))
	assert.Equal(t, "read write push", q.Get("scope"))
}

func TestStartAppClient_RejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ClientSecret = ""
	c := NewOAuthClient(cfg, zap.NewNop())

	assert.ErrorIs(t, c.StartAppClient("mstdn.social"), ErrInvalidInput)
	assert.ErrorIs(t, NewOAuthClient(testConfig(), nil).StartAppClient(" "), ErrInvalidInput)
}

func TestExchangeCode_ReturnsToken_When_CodeAccepted(t *testing.T) {
	t.Parallel()

	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"user-token","token_type":"Bearer","scope":"read write push","created_at":1700000000}`))
	})

	c := NewOAuthClient(testConfig(), zap.NewNop(), WithHTTPClient(client), fastRetry())
	require.NoError(t, c.StartAppClient(domain))

	token, err := c.ExchangeCode(context.Background(), " the-code ", 3)
	require.NoError(t, err)
	assert.Equal(t, "user-token", token)
}

func TestExchangeCode_FailsWithoutRetry_When_CodeRejected(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"The provided authorization grant is invalid"}`))
	})
	logger, logs := observedLogger()
	c := NewOAuthClient(testConfig(), logger, WithHTTPClient(client), fastRetry())
	require.NoError(t, c.StartAppClient(domain))

	_, err := c.ExchangeCode(context.Background(), "bad", 3)

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("failed to generate user access token").Len())
}

func TestExchangeCode_RetriesThenErrConn_When_ServerFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c := NewOAuthClient(testConfig(), zap.NewNop(), WithHTTPClient(client), fastRetry())
	require.NoError(t, c.StartAppClient(domain))

	_, err := c.ExchangeCode(context.Background(), "code", 3)

	assert.ErrorIs(t, err, ErrConn)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExchangeCode_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"second-try","token_type":"Bearer"}`))
	})
	c := NewOAuthClient(testConfig(), zap.NewNop(), WithHTTPClient(client), fastRetry())
	require.NoError(t, c.StartAppClient(domain))

	token, err := c.ExchangeCode(context.Background(), "code", 3)
	require.NoError(t, err)
	assert.Equal(t, "second-try", token)
}

func TestVerifyApp_UsesAppToken(t *testing.T) {
	t.Parallel()

	domain, client := newInstance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/apps/verify_credentials", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer app-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"name":"feed-amalgamator","website":"https://example.org"}`))
	})

	c := NewOAuthClient(testConfig(), zap.NewNop(), WithHTTPClient(client), fastRetry())
	require.NoError(t, c.StartAppClient(domain))
	app, err := c.VerifyApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feed-amalgamator", app.Name)

	cfg := testConfig()
	cfg.AccessToken = "wrong"
	c = NewOAuthClient(cfg, zap.NewNop(), WithHTTPClient(client), fastRetry())
	require.NoError(t, c.StartAppClient(domain))
	_, err = c.VerifyApp(context.Background())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
