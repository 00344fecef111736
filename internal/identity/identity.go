// Package identity resolves the GitHub login the assistant acts for.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/jaya/github-mcp-openai-assistant/internal/buildinfo"
	"github.com/jaya/github-mcp-openai-assistant/internal/config"
	"github.com/jaya/github-mcp-openai-assistant/internal/httpkit"
)

// lookupTimeout bounds the authenticated-user request.
const lookupTimeout = 15 * time.Second

// Resolver determines the GitHub login from configuration or, failing
// that, from the GitHub API using the configured token.
type Resolver struct {
	login  string
	token  config.Secret
	apiURL string
	client *http.Client
	logger *slog.Logger
}

// NewResolver creates a resolver for cfg. A nil httpClient uses a
// default client stamped with the assistant's User-Agent.
func NewResolver(cfg config.GitHubConfig, httpClient *http.Client, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient(
			httpkit.WithTimeout(lookupTimeout),
			httpkit.WithUserAgent(buildinfo.UserAgent()),
		)
	}
	return &Resolver{
		login:  cfg.Login,
		token:  cfg.Token,
		apiURL: cfg.APIURL,
		client: httpClient,
		logger: logger,
	}
}

// Resolve returns the login. The configured login wins. Without one,
// the token's owner is looked up; any failure is logged and yields "".
func (r *Resolver) Resolve(ctx context.Context) string {
	if r.login != "" {
		return r.login
	}
	if r.token.Reveal() == "" {
		r.logger.Debug("no github login or token configured")
		return ""
	}

	login, err := r.lookup(ctx)
	if err != nil {
		r.logger.Warn("github identity lookup failed", "error", err)
		return ""
	}
	r.logger.Info("resolved github identity", "login", login)
	return login
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	client := gogithub.NewClient(r.client).WithAuthToken(r.token.Reveal())
	if r.apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(r.apiURL, r.apiURL)
		if err != nil {
			return "", fmt.Errorf("github api url %q: %w", r.apiURL, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("get authenticated user: %w", err)
	}
	if resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		r.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time,
		)
	}
	login := user.GetLogin()
	if login == "" {
		return "", fmt.Errorf("authenticated user has no login")
	}
	return login, nil
}
