package algobot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const (
	codeforcesBaseURL = "https://codeforces.com"
	atcoderBaseURL    = "https://atcoder.jp"
	atcoderFeedURL    = "https://kenkoooo.com/atcoder/resources/problems.json"

	platformListTTL = time.Hour
)

// PlatformProblem is one problem from a non-LeetCode judge.
type PlatformProblem struct {
	Platform string   `json:"platform"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Rating   int      `json:"rating,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	URL      string   `json:"url"`
}

// CodeforcesClient serves random problems from the Codeforces
// problemset, cached in memory with a TTL.
type CodeforcesClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string

	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration

	mu        sync.Mutex
	problems  []PlatformProblem
	fetchedAt time.Time

	now func() time.Time
}

// NewCodeforcesClient creates a client using the shared fetch settings.
func NewCodeforcesClient(config *LeetCodeConfig, httpClient *http.Client) *CodeforcesClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CodeforcesClient{
		logger: slog.New(newTintHandler(config.LogLevel)).With(
			loggerNameKey, "codeforces",
		),
		httpClient: httpClient,
		baseURL:    codeforcesBaseURL,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		timeout:    config.RequestTimeout,
		now:        time.Now,
	}
}

type codeforcesListResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  struct {
		Problems []struct {
			ContestID int      `json:"contestId"`
			Index     string   `json:"index"`
			Name      string   `json:"name"`
			Rating    int      `json:"rating"`
			Tags      []string `json:"tags"`
		} `json:"problems"`
	} `json:"result"`
}

func (c *CodeforcesClient) fetchProblems(ctx context.Context) ([]PlatformProblem, error) {
	url := c.baseURL + "/api/problemset.problems"
	return withRetry(
		ctx,
		c.logger,
		"codeforces problemset",
		c.maxRetries,
		c.retryDelay,
		func(ctx context.Context) ([]PlatformProblem, error) {
			var response codeforcesListResponse
			if err := fetchJSON(ctx, c.httpClient, url, c.timeout, &response); err != nil {
				return nil, err
			}
			if response.Status != "OK" {
				return nil, fmt.Errorf(
					"codeforces API status %q: %s",
					response.Status, response.Comment,
				)
			}
			problems := make([]PlatformProblem, 0, len(response.Result.Problems))
			for _, p := range response.Result.Problems {
				id := fmt.Sprintf("%d%s", p.ContestID, p.Index)
				problems = append(
					problems, PlatformProblem{
						Platform: "codeforces",
						ID:       id,
						Name:     p.Name,
						Rating:   p.Rating,
						Tags:     p.Tags,
						URL: fmt.Sprintf(
							"%s/problemset/problem/%d/%s",
							c.baseURL, p.ContestID, p.Index,
						),
					},
				)
			}
			return problems, nil
		},
	)
}

// cachedProblems returns the problem list, refreshing it when the cache
// is empty or stale. A failed refresh falls back to the stale list if
// one exists.
func (c *CodeforcesClient) cachedProblems(ctx context.Context) ([]PlatformProblem, error) {
	c.mu.Lock()
	fresh := len(c.problems) > 0 && c.now().Sub(c.fetchedAt) <= platformListTTL
	cached := c.problems
	c.mu.Unlock()
	if fresh {
		return cached, nil
	}

	problems, err := c.fetchProblems(ctx)
	if err != nil {
		if len(cached) > 0 {
			c.logger.Warn("using stale problem list", tint.Err(err))
			return cached, nil
		}
		return nil, err
	}
	c.mu.Lock()
	c.problems = problems
	c.fetchedAt = c.now()
	c.mu.Unlock()
	c.logger.Info("refreshed problem list", "count", len(problems))
	return problems, nil
}

// RandomProblem picks a uniformly random problem, optionally restricted
// to a rating range. Zero bounds are open; problems without a rating
// only match fully open ranges.
func (c *CodeforcesClient) RandomProblem(
	ctx context.Context,
	minRating int,
	maxRating int,
) (*PlatformProblem, error) {
	if minRating > 0 && maxRating > 0 && minRating > maxRating {
		return nil, fmt.Errorf(
			"invalid rating range %d-%d", minRating, maxRating,
		)
	}
	problems, err := c.cachedProblems(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]PlatformProblem, 0, len(problems))
	for _, p := range problems {
		if minRating > 0 && p.Rating < minRating {
			continue
		}
		if maxRating > 0 && (p.Rating == 0 || p.Rating > maxRating) {
			continue
		}
		matches = append(matches, p)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf(
			"no problems with rating between %d and %d", minRating, maxRating,
		)
	}
	picked := matches[rand.Intn(len(matches))]
	return &picked, nil
}

// AtCoderClient serves random problems from the AtCoder problems feed,
// cached in memory with a TTL.
type AtCoderClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	feedURL    string

	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration

	mu        sync.Mutex
	problems  []PlatformProblem
	fetchedAt time.Time

	now func() time.Time
}

// NewAtCoderClient creates a client using the shared fetch settings.
func NewAtCoderClient(config *LeetCodeConfig, httpClient *http.Client) *AtCoderClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AtCoderClient{
		logger: slog.New(newTintHandler(config.LogLevel)).With(
			loggerNameKey, "atcoder",
		),
		httpClient: httpClient,
		feedURL:    atcoderFeedURL,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		timeout:    config.RequestTimeout,
		now:        time.Now,
	}
}

type atcoderProblemEntry struct {
	ID        string `json:"id"`
	ContestID string `json:"contest_id"`
	Title     string `json:"title"`
}

func (a *AtCoderClient) fetchProblems(ctx context.Context) ([]PlatformProblem, error) {
	return withRetry(
		ctx,
		a.logger,
		"atcoder problem feed",
		a.maxRetries,
		a.retryDelay,
		func(ctx context.Context) ([]PlatformProblem, error) {
			var entries []atcoderProblemEntry
			if err := fetchJSON(ctx, a.httpClient, a.feedURL, a.timeout, &entries); err != nil {
				return nil, err
			}
			problems := make([]PlatformProblem, 0, len(entries))
			for _, entry := range entries {
				problems = append(
					problems, PlatformProblem{
						Platform: "atcoder",
						ID:       entry.ID,
						Name:     entry.Title,
						URL: fmt.Sprintf(
							"%s/contests/%s/tasks/%s",
							atcoderBaseURL, entry.ContestID, entry.ID,
						),
					},
				)
			}
			return problems, nil
		},
	)
}

func (a *AtCoderClient) cachedProblems(ctx context.Context) ([]PlatformProblem, error) {
	a.mu.Lock()
	fresh := len(a.problems) > 0 && a.now().Sub(a.fetchedAt) <= platformListTTL
	cached := a.problems
	a.mu.Unlock()
	if fresh {
		return cached, nil
	}

	problems, err := a.fetchProblems(ctx)
	if err != nil {
		if len(cached) > 0 {
			a.logger.Warn("using stale problem list", tint.Err(err))
			return cached, nil
		}
		return nil, err
	}
	a.mu.Lock()
	a.problems = problems
	a.fetchedAt = a.now()
	a.mu.Unlock()
	a.logger.Info("refreshed problem list", "count", len(problems))
	return problems, nil
}

// RandomProblem picks a uniformly random problem from the feed.
func (a *AtCoderClient) RandomProblem(ctx context.Context) (*PlatformProblem, error) {
	problems, err := a.cachedProblems(ctx)
	if err != nil {
		return nil, err
	}
	if len(problems) == 0 {
		return nil, fmt.Errorf("empty problem feed")
	}
	picked := problems[rand.Intn(len(problems))]
	return &picked, nil
}

// fetchJSON GETs a URL and decodes the JSON response body.
func fetchJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	timeout time.Duration,
	out any,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", res.StatusCode, url)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
