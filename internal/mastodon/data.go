package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dkoosis/amalgam/internal/config"
)

// Timeline names accepted by Timeline besides the tag: and list: forms.
const (
	TimelineHome   = "home"
	TimelinePublic = "public"
	TimelineLocal  = "local"
)

// DataClient reads data on a user's behalf once OAuth is done.
type DataClient struct {
	t      *transport
	tries  int
	domain string
	token  string
}

// NewDataClient creates a client; StartUserClient must succeed before any
// data call.
func NewDataClient(cfg config.MastodonConfig, logger *zap.Logger, opts ...Option) *DataClient {
	tries := cfg.Tries
	if tries <= 0 {
		tries = config.DefaultMastodonTries
	}
	return &DataClient{t: newTransport(cfg.Timeout, logger, opts), tries: tries}
}

// StartUserClient binds the client to a user's domain and access token.
// It fetches one post from the home timeline to check the token: 401 is
// ErrInvalidInput, any other failure ErrConn.
func (c *DataClient) StartUserClient(ctx context.Context, domain, token string) error {
	d := CleanDomain(domain)
	token = strings.TrimSpace(token)
	if d == "" || token == "" {
		c.t.logger.Error("start user client needs a domain and an access token")
		return fmt.Errorf("%w: domain and access token are required", ErrInvalidInput)
	}

	c.t.logger.Info("starting user api client", zap.String("domain", d))
	path, err := timelinePath(TimelineHome, 1)
	if err != nil {
		return err
	}
	var sample []Post
	err = c.t.withRetries(ctx, "start user client", 1, func() error {
		return classifyUnauthorized(c.t.getJSON(ctx, "api/v1/timelines", baseURL(d)+path, token, &sample))
	})
	if err != nil {
		c.t.logger.Error("start user client failed", zap.String("domain", d), zap.Error(err))
		return err
	}

	c.domain = d
	c.token = token
	c.t.logger.Info("started user api client", zap.String("domain", d))
	return nil
}

// Started reports whether StartUserClient succeeded.
func (c *DataClient) Started() bool { return c.token != "" }

// Timeline fetches up to limit posts from the named timeline: home, public,
// local, tag:<hashtag> or list:<id>. Failures are retried up to tries
// times (the configured default when tries <= 0).
func (c *DataClient) Timeline(ctx context.Context, name string, limit, tries int) ([]Post, error) {
	if !c.Started() {
		c.t.logger.Error("timeline requested before user client was started")
		return nil, ErrClientNotStarted
	}
	path, err := timelinePath(name, limit)
	if err != nil {
		c.t.logger.Error("invalid timeline request", zap.String("timeline", name), zap.Error(err))
		return nil, err
	}
	if tries <= 0 {
		tries = c.tries
	}

	c.t.logger.Info("fetching timeline", zap.String("timeline", name), zap.Int("limit", limit))
	var posts []Post
	err = c.t.withRetries(ctx, "timeline "+name, tries, func() error {
		posts = nil
		return classifyUnauthorized(c.t.getJSON(ctx, "api/v1/timelines", baseURL(c.domain)+path, c.token, &posts))
	})
	if err != nil {
		c.t.logger.Error("failed to get timeline data",
			zap.String("timeline", name),
			zap.Int("tries", tries),
			zap.Error(err))
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	c.t.logger.Info("fetched timeline", zap.String("timeline", name), zap.Int("posts", len(posts)))
	return posts, nil
}

// timelinePath maps a timeline name to its API path and query.
func timelinePath(name string, limit int) (string, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var path string
	switch {
	case name == TimelineHome:
		path = "/api/v1/timelines/home"
	case name == TimelinePublic:
		path = "/api/v1/timelines/public"
	case name == TimelineLocal:
		path = "/api/v1/timelines/public"
		q.Set("local", "true")
	case strings.HasPrefix(name, "tag:") && len(name) > len("tag:"):
		path = "/api/v1/timelines/tag/" + url.PathEscape(strings.TrimPrefix(name, "tag:"))
	case strings.HasPrefix(name, "list:") && len(name) > len("list:"):
		path = "/api/v1/timelines/list/" + url.PathEscape(strings.TrimPrefix(name, "list:"))
	default:
		return "", fmt.Errorf("%w: unknown timeline %q", ErrInvalidInput, name)
	}

	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return path, nil
}

// classifyUnauthorized turns a 401 into ErrInvalidInput. A 403 means the
// token is valid but the instance refused the call, so it stays a
// connection failure.
func classifyUnauthorized(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrInvalidInput, apiErr)
	}
	return err
}
