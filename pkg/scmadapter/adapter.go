// Package scmadapter is the "source control" integration.Adapter: it asks
// GitHub for recent commits and deployment statuses touching the alerting
// service's repository, giving the Analysis Engine a "what changed
// recently" signal. No GitHub SDK appears anywhere in the corpus, so the
// client is a thin hand-rolled net/http wrapper — oauth2 supplies the
// bearer token, not a generated API surface.
package scmadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
	"github.com/ondutyhq/sentinel/pkg/incident"
)

const defaultBaseURL = "https://api.github.com"

// RepoResolver maps an alert's service name to the GitHub "owner/repo" that
// serves it. Deployments rarely name their source repository 1:1 with the
// Kubernetes service, so this is supplied by the operator rather than
// derived.
type RepoResolver func(service string) (owner, repo string, ok bool)

// Adapter is the GitHub source-control integration. It is read-only:
// ExecuteAction always returns KindUnsupported.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	resolve    RepoResolver
	lookback   time.Duration
}

// NewAdapter builds an Adapter authenticating with a GitHub personal access
// or app-installation token via oauth2's static token source.
func NewAdapter(token string, resolve RepoResolver, lookback time.Duration) *Adapter {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Adapter{
		baseURL:    defaultBaseURL,
		httpClient: oauth2.NewClient(context.Background(), src),
		resolve:    resolve,
		lookback:   lookback,
	}
}

func (a *Adapter) Name() string { return "source_control" }

func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) Health(ctx context.Context) error {
	var rl rateLimitResponse
	if err := a.do(ctx, http.MethodGet, "/rate_limit", &rl); err != nil {
		return senerrors.Transient("health", a.Name(), err)
	}
	return nil
}

type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Remaining int `json:"remaining"`
		} `json:"core"`
	} `json:"resources"`
}

type commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	HTMLURL string `json:"html_url"`
}

type deploymentStatus struct {
	State       string    `json:"state"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"created_at"`
}

// FetchContext fetches the alerting service's owning repository's recent
// commit history and, if any deployments exist, their latest statuses.
// Unresolvable services (no RepoResolver match) return an OK-but-empty
// bundle rather than an error — most alerts won't map to a tracked repo,
// and that's not a fetch failure.
func (a *Adapter) FetchContext(ctx context.Context, inc incident.Incident) (incident.ContextBundle, error) {
	start := time.Now()
	owner, repo, ok := a.resolve(inc.Alert.Service)
	if !ok {
		return incident.ContextBundle{AdapterName: a.Name(), OK: true, DurationMS: time.Since(start).Milliseconds()}, nil
	}

	data := map[string]any{}

	var commits []commit
	since := time.Now().Add(-a.lookback).Format(time.RFC3339)
	path := fmt.Sprintf("/repos/%s/%s/commits?since=%s", owner, repo, since)
	if err := a.do(ctx, http.MethodGet, path, &commits); err != nil {
		return incident.ContextBundle{}, senerrors.Transient("fetch_context", a.Name(), err)
	}
	data["recent_commits"] = summarizeCommits(commits)

	var deployments []struct {
		ID int64 `json:"id"`
	}
	depPath := fmt.Sprintf("/repos/%s/%s/deployments?per_page=5", owner, repo)
	if err := a.do(ctx, http.MethodGet, depPath, &deployments); err == nil && len(deployments) > 0 {
		var statuses []deploymentStatus
		statusPath := fmt.Sprintf("/repos/%s/%s/deployments/%d/statuses", owner, repo, deployments[0].ID)
		if err := a.do(ctx, http.MethodGet, statusPath, &statuses); err == nil {
			data["latest_deployment_statuses"] = statuses
		}
	}

	return incident.ContextBundle{
		AdapterName: a.Name(),
		OK:          true,
		Data:        data,
		DurationMS:  time.Since(start).Milliseconds(),
	}, nil
}

func summarizeCommits(commits []commit) []map[string]any {
	out := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		out = append(out, map[string]any{
			"sha":     c.SHA,
			"message": c.Commit.Message,
			"author":  c.Commit.Author.Name,
			"date":    c.Commit.Author.Date,
			"url":     c.HTMLURL,
		})
	}
	return out
}

// ExecuteAction is unsupported: spec.md §4.1 names no source-control verb.
func (a *Adapter) ExecuteAction(ctx context.Context, cmd incident.CommandSpec) (incident.ExecutionRecord, error) {
	return incident.ExecutionRecord{Command: cmd, Status: incident.StatusSkipped},
		senerrors.Unsupported("execute_action", a.Name(), fmt.Errorf("source control adapter is read-only"))
}

func (a *Adapter) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github API error (status %d): %s", resp.StatusCode, string(body))
	}
	if result != nil {
		dec := json.NewDecoder(resp.Body)
		if err := dec.Decode(result); err != nil && err != io.EOF {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

