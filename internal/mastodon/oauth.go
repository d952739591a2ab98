package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/dkoosis/amalgam/internal/config"
	"github.com/dkoosis/amalgam/internal/observability"
)

// OAuthClient handles the user authorization flow with the app's own
// credentials.
type OAuthClient struct {
	cfg    config.MastodonConfig
	t      *transport
	domain string
	oauth  *oauth2.Config
}

// NewOAuthClient creates a client for the app credentials in cfg. Nothing
// touches the network until a method is called.
func NewOAuthClient(cfg config.MastodonConfig, logger *zap.Logger, opts ...Option) *OAuthClient {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), config.DefaultScopes...)
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = config.DefaultRedirectURI
	}
	if cfg.Tries <= 0 {
		cfg.Tries = config.DefaultMastodonTries
	}
	return &OAuthClient{cfg: cfg, t: newTransport(cfg.Timeout, logger, opts)}
}

// CleanDomain normalizes what a user typed as their server. With a scheme
// the host is kept ("https://mstdn.social/about" -> "mstdn.social");
// without one the input is returned as is, minus surrounding spaces.
func CleanDomain(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return u.Host
	}
	return s
}

type instanceInfo struct {
	Domain string `json:"domain"`
	Title  string `json:"title"`
}

// VerifyDomain checks that userDomain answers /api/v2/instance and returns
// the canonical domain the instance reports.
func (c *OAuthClient) VerifyDomain(ctx context.Context, userDomain string) (string, error) {
	wanted := CleanDomain(userDomain)
	if wanted == "" {
		c.t.logger.Error("empty domain supplied for verification", zap.String("input", userDomain))
		return "", fmt.Errorf("%w: %q", ErrUnverifiedDomain, userDomain)
	}

	var info instanceInfo
	err := c.t.getJSON(ctx, "api/v2/instance", baseURL(wanted)+"/api/v2/instance", "", &info)
	if err == nil && info.Domain == "" {
		err = errors.New("instance response has no domain")
	}
	if err != nil {
		c.t.logger.Error("could not verify user provided domain; it is invalid or unreachable",
			zap.String("domain", wanted),
			zap.Error(err))
		return "", fmt.Errorf("%w: %s: %v", ErrUnverifiedDomain, wanted, err)
	}
	return info.Domain, nil
}

// StartAppClient prepares the OAuth configuration for domain. Wrong
// credentials are not detected here; they fail when the client is used.
func (c *OAuthClient) StartAppClient(domain string) error {
	d := CleanDomain(domain)
	if d == "" {
		c.t.logger.Error("cannot start app client without a domain")
		return fmt.Errorf("%w: empty domain", ErrInvalidInput)
	}
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		c.t.logger.Error("cannot start app client: client id or secret not configured")
		return fmt.Errorf("%w: client id and secret are required", ErrInvalidInput)
	}

	base := baseURL(d)
	c.domain = d
	c.oauth = &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Scopes:       c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return nil
}

// Domain returns the domain the app client was started for.
func (c *OAuthClient) Domain() string { return c.domain }

// AuthorizeURL returns the page where the user approves the app and is
// shown a code to paste back. The URL is built locally and not checked.
func (c *OAuthClient) AuthorizeURL() (string, error) {
	if c.oauth == nil {
		c.t.logger.Error("authorize url requested before app client was started")
		return "", ErrClientNotStarted
	}
	return c.oauth.AuthCodeURL(""), nil
}

// ExchangeCode trades the user's authorization code for a user access
// token. A code the instance rejects is ErrInvalidInput and is not retried;
// transport and server errors are retried up to tries times, then ErrConn.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string, tries int) (string, error) {
	if c.oauth == nil {
		c.t.logger.Error("token exchange requested before app client was started")
		return "", ErrClientNotStarted
	}
	code = strings.TrimSpace(code)
	if code == "" {
		c.t.logger.Error("empty authorization code")
		return "", fmt.Errorf("%w: empty authorization code", ErrInvalidInput)
	}
	if tries <= 0 {
		tries = c.cfg.Tries
	}

	var token string
	err := c.t.withRetries(ctx, "exchange code", tries, func() error {
		tok, err := c.exchangeOnce(ctx, code)
		if err != nil {
			return err
		}
		token = tok.AccessToken
		return nil
	})
	if err != nil {
		c.t.logger.Error("failed to generate user access token",
			zap.String("domain", c.domain),
			zap.Error(err))
		return "", err
	}
	return token, nil
}

func (c *OAuthClient) exchangeOnce(ctx context.Context, code string) (*oauth2.Token, error) {
	const endpoint = "oauth/token"
	start := time.Now()

	reqCtx := context.WithValue(ctx, oauth2.HTTPClient, c.t.client)
	if c.t.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.t.timeout)
		defer cancel()
	}

	tok, err := c.oauth.Exchange(reqCtx, code)
	observability.MastodonAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err == nil {
		observability.MastodonAPICallsTotal.WithLabelValues(endpoint, "2xx").Inc()
		if tok.AccessToken == "" {
			return nil, errors.New("token response has no access_token")
		}
		return tok, nil
	}

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		observability.MastodonAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	status := re.Response.StatusCode
	observability.MastodonAPICallsTotal.WithLabelValues(endpoint, observability.StatusLabel(status)).Inc()
	apiErr := &APIError{Endpoint: endpoint, StatusCode: status, Message: errorMessage(re.Body)}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: authorization code rejected: %v", ErrInvalidInput, apiErr)
	}
	return nil, apiErr
}

// App is what an instance reports about the registered application.
type App struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// VerifyApp checks the configured app access token against the started
// domain.
func (c *OAuthClient) VerifyApp(ctx context.Context) (App, error) {
	if c.oauth == nil {
		return App{}, ErrClientNotStarted
	}
	if c.cfg.AccessToken == "" {
		c.t.logger.Error("app access token not configured")
		return App{}, fmt.Errorf("%w: app access token is not configured", ErrInvalidInput)
	}

	var app App
	err := c.t.withRetries(ctx, "verify app", c.cfg.Tries, func() error {
		err := c.t.getJSON(ctx, "api/v1/apps/verify_credentials",
			baseURL(c.domain)+"/api/v1/apps/verify_credentials", c.cfg.AccessToken, &app)
		return classifyAuth(err)
	})
	if err != nil {
		c.t.logger.Error("app credential check failed", zap.String("domain", c.domain), zap.Error(err))
		return App{}, err
	}
	return app, nil
}

// classifyAuth turns 401/403 answers into ErrInvalidInput.
func classifyAuth(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, apiErr)
	}
	return err
}
