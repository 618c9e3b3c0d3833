package algobot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// problemCategories are the list-view categories synced during a full
// resync. Order across categories is irrelevant; order within one is
// the source's native order.
var problemCategories = []string{"algorithms", "database", "shell"}

const (
	// The monthly archive only covers April 2020 onward. Requests for
	// earlier months are rejected without a network call.
	archiveEpochYear  = 2020
	archiveEpochMonth = 4

	fetchUserAgent = "Mozilla/5.0"
)

const queryQuestionDetail = `
query getQuestionDetail($titleSlug: String!) {
    question(titleSlug: $titleSlug) {
        questionId
        questionFrontendId
        title
        titleSlug
        translatedTitle
        difficulty
        acRate
        isPaidOnly
        translatedContent
        content
        similarQuestions
        topicTags {
            name
            id
            slug
        }
        categoryTitle
    }
}`

const queryDailyPrimary = `
query questionOfToday {
    activeDailyCodingChallengeQuestion {
        date
        link
        question {
            acRate
            difficulty
            frontendQuestionId: questionFrontendId
            paidOnly: isPaidOnly
            title
            titleSlug
            topicTags {
                name
                id
                slug
            }
        }
    }
}`

const queryDailyRegional = `
query questionOfToday {
    todayRecord {
        date
        question {
            questionId
            frontendQuestionId: questionFrontendId
            difficulty
            title
            titleCn: translatedTitle
            titleSlug
            paidOnly: isPaidOnly
            acRate
            topicTags {
                name
                nameTranslated: translatedName
                id
            }
        }
    }
}`

const queryMonthlyChallenges = `
query dailyCodingQuestionRecords($year: Int!, $month: Int!) {
    dailyCodingChallengeV2(year: $year, month: $month) {
        challenges {
            date
            userStatus
            link
            question {
                questionFrontendId
                title
                titleSlug
            }
        }
        weeklyChallenges {
            date
            userStatus
            link
            question {
                questionFrontendId
                title
                titleSlug
                isPaidOnly
            }
        }
    }
}`

const queryRecentSubmissions = `
query recentAcSubmissions($username: String!, $limit: Int!) {
    recentAcSubmissionList(username: $username, limit: $limit) {
        id
        title
        titleSlug
        timestamp
    }
}`

// LeetCode is the problem sync client for a single LeetCode domain.
//
// It owns the merge/cache engine: lookups check the store first, fall
// back to the remote fetchers, merge partial records field-monotonically
// and persist the result. A process-wide in-memory cache holds the
// expensive external ratings feed with a TTL.
type LeetCode struct {
	domain     Domain
	config     *LeetCodeConfig
	db         *store
	logger     *slog.Logger
	httpClient *http.Client

	// baseURL is the GraphQL/site root; listBaseURL serves the REST
	// problem-list API; ratingsURL is the external ratings feed. All
	// three are fields so tests can point them at local servers.
	baseURL     string
	listBaseURL string
	ratingsURL  string

	// ratingsFetchMu serializes ratings-feed requests. The minimum gap
	// between requests is measured from the end of the previous one,
	// regardless of cache state.
	ratingsFetchMu     sync.Mutex
	ratingsMinInterval time.Duration
	lastRatingsFetch   time.Time

	// ratings is replaced wholesale on refresh, never mutated in place.
	// The mutex covers only the map swap and reads; concurrent
	// refreshes may both fetch, and the last write wins.
	ratingsMu        sync.Mutex
	ratings          map[int]RatingInfo
	ratingsUpdatedAt time.Time

	// fetchSem caps simultaneous detail fetches during background
	// monthly enrichment; enrichLimiter paces item launches.
	fetchSem      *semaphore.Weighted
	enrichLimiter *rate.Limiter

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgTasks  sync.WaitGroup

	now func() time.Time
}

// NewLeetCode creates a client for the given domain.
func NewLeetCode(
	domain Domain,
	config *LeetCodeConfig,
	db *store,
	httpClient *http.Client,
) (*LeetCode, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf(
			"domain must be %q or %q, got %q",
			DomainPrimary, DomainRegional, domain,
		)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := slog.New(newTintHandler(config.LogLevel)).With(
		loggerNameKey, fmt.Sprintf("leetcode.%s", domain),
	)
	bgCtx, bgCancel := context.WithCancel(context.Background())
	lc := &LeetCode{
		domain:             domain,
		config:             config,
		db:                 db,
		logger:             logger,
		httpClient:         httpClient,
		baseURL:            domain.BaseURL(),
		listBaseURL:        DomainPrimary.BaseURL(),
		ratingsURL:         ratingsFeedURL,
		ratingsMinInterval: DefaultRatingsMinInterval,
		fetchSem:           semaphore.NewWeighted(config.MonthlyFetchConcurrency),
		enrichLimiter:      rate.NewLimiter(rate.Every(config.MonthlyFetchDelay), 1),
		bgCtx:              bgCtx,
		bgCancel:           bgCancel,
		now:                time.Now,
	}
	logger.Info("initialized client", "domain", domain)
	return lc, nil
}

// Domain returns the LeetCode domain this client serves.
func (lc *LeetCode) Domain() Domain {
	return lc.domain
}

// Shutdown cancels all background enrichment tasks and waits for them
// to finish.
func (lc *LeetCode) Shutdown() {
	lc.bgCancel()
	lc.bgTasks.Wait()
	lc.logger.Info("all background tasks stopped")
}

func (lc *LeetCode) graphqlURL() string {
	return lc.baseURL + "/graphql"
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (lc *LeetCode) doJSON(
	ctx context.Context,
	method string,
	url string,
	body any,
	out any,
) error {
	ctx, cancel := context.WithTimeout(ctx, lc.config.RequestTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := lc.httpClient.Do(req)
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
	if err = json.Unmarshal(data, out); err != nil {
		snippet := strings.ReplaceAll(truncate(string(data), 200), "\n", " ")
		return fmt.Errorf("failed to parse JSON (snippet: %s): %w", snippet, err)
	}
	return nil
}

type problemListResponse struct {
	NumTotal        int `json:"num_total"`
	StatStatusPairs []struct {
		Stat struct {
			FrontendQuestionID int    `json:"frontend_question_id"`
			QuestionTitle      string `json:"question__title"`
			QuestionTitleSlug  string `json:"question__title_slug"`
			QuestionHide       bool   `json:"question__hide"`
			TotalACs           int    `json:"total_acs"`
			TotalSubmitted     int    `json:"total_submitted"`
		} `json:"stat"`
		Difficulty struct {
			Level int `json:"level"`
		} `json:"difficulty"`
		PaidOnly bool `json:"paid_only"`
	} `json:"stat_status_pairs"`
}

// fetchCategoryProblems downloads the list view for one category.
// Failures are retried with a fixed delay; after exhaustion the result
// is an empty slice, never an error.
func (lc *LeetCode) fetchCategoryProblems(ctx context.Context, category string) []Problem {
	url := fmt.Sprintf("%s/api/problems/%s/", lc.listBaseURL, category)
	problems, err := withRetry(
		ctx,
		lc.logger,
		fmt.Sprintf("%s problem list", category),
		lc.config.MaxRetries,
		lc.config.RetryDelay,
		func(ctx context.Context) ([]Problem, error) {
			var listResponse problemListResponse
			if err := lc.doJSON(ctx, http.MethodGet, url, nil, &listResponse); err != nil {
				return nil, err
			}
			return lc.parseListProblems(listResponse, category), nil
		},
	)
	if err != nil {
		return nil
	}
	lc.logger.Info("downloaded problem list", "category", category, "count", len(problems))
	return problems
}

// parseListProblems converts a list-view response into partial problem
// records. Hidden problems are filtered out here and never surfaced.
func (lc *LeetCode) parseListProblems(
	response problemListResponse,
	category string,
) []Problem {
	problems := make([]Problem, 0, len(response.StatStatusPairs))
	for _, pair := range response.StatStatusPairs {
		if pair.Stat.QuestionHide {
			continue
		}
		totalSubmitted := pair.Stat.TotalSubmitted
		if totalSubmitted == 0 {
			totalSubmitted = 1
		}
		slug := pair.Stat.QuestionTitleSlug
		problems = append(
			problems, Problem{
				ID:         pair.Stat.FrontendQuestionID,
				Slug:       slug,
				Title:      pair.Stat.QuestionTitle,
				Difficulty: difficultyName(pair.Difficulty.Level),
				AcRate:     float64(pair.Stat.TotalACs) * 100 / float64(totalSubmitted),
				Link:       fmt.Sprintf("%s/problems/%s/", DomainPrimary.BaseURL(), slug),
				Category:   titleCase(category),
				PaidOnly:   pair.PaidOnly,
			},
		)
	}
	return problems
}

// fetchAllProblems downloads every category concurrently and
// concatenates the results. A failed category contributes an empty
// slice without cancelling its siblings.
func (lc *LeetCode) fetchAllProblems(ctx context.Context) []Problem {
	results := make([][]Problem, len(problemCategories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range problemCategories {
		i, category := i, category
		g.Go(
			func() error {
				results[i] = lc.fetchCategoryProblems(gctx, category)
				return nil
			},
		)
	}
	_ = g.Wait()

	var problems []Problem
	for _, categoryProblems := range results {
		problems = append(problems, categoryProblems...)
	}
	return problems
}

// ResyncProblems performs a full list-view sync, inserting any problems
// not yet present. Existing rows are left untouched.
func (lc *LeetCode) ResyncProblems(ctx context.Context) (int64, error) {
	problems := lc.fetchAllProblems(ctx)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	inserted, err := lc.db.InsertProblems(ctx, problems)
	if err != nil {
		lc.logger.Error("error inserting problems", tint.Err(err))
		return 0, err
	}
	lc.logger.Info(
		"problem resync complete",
		"fetched", len(problems),
		"inserted", inserted,
	)
	return inserted, nil
}

type questionDetailResponse struct {
	Data struct {
		Question *struct {
			QuestionFrontendID string  `json:"questionFrontendId"`
			Title              string  `json:"title"`
			TranslatedTitle    string  `json:"translatedTitle"`
			TitleSlug          string  `json:"titleSlug"`
			Difficulty         string  `json:"difficulty"`
			AcRate             float64 `json:"acRate"`
			IsPaidOnly         bool    `json:"isPaidOnly"`
			Content            string  `json:"content"`
			TranslatedContent  string  `json:"translatedContent"`
			SimilarQuestions   string  `json:"similarQuestions"`
			TopicTags          []struct {
				Name string `json:"name"`
			} `json:"topicTags"`
			CategoryTitle string `json:"categoryTitle"`
		} `json:"question"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// fetchProblemDetail fetches the detail view for a slug. A nil result
// means the fetch failed permanently or the problem doesn't exist
// upstream; the caller keeps whatever it already has.
func (lc *LeetCode) fetchProblemDetail(ctx context.Context, slug string) *Problem {
	payload := graphqlRequest{
		Query:         queryQuestionDetail,
		Variables:     map[string]any{"titleSlug": slug},
		OperationName: "getQuestionDetail",
	}
	detail, err := withRetry(
		ctx,
		lc.logger,
		fmt.Sprintf("problem detail %q", slug),
		lc.config.MaxRetries,
		lc.config.RetryDelay,
		func(ctx context.Context) (*Problem, error) {
			var response questionDetailResponse
			err := lc.doJSON(ctx, http.MethodPost, lc.graphqlURL(), payload, &response)
			if err != nil {
				return nil, err
			}
			if len(response.Errors) > 0 {
				return nil, fmt.Errorf("graphql error: %s", response.Errors[0].Message)
			}
			q := response.Data.Question
			if q == nil {
				// Hidden/removed problem: a normal absence, not an error.
				return nil, nil
			}

			var similar SimilarQuestions
			if q.SimilarQuestions != "" {
				if jsonErr := json.Unmarshal(
					[]byte(q.SimilarQuestions), &similar,
				); jsonErr != nil {
					lc.logger.Warn(
						"unparseable similar questions",
						"slug", slug,
						tint.Err(jsonErr),
					)
				}
			}
			tags := make(StringSlice, 0, len(q.TopicTags))
			for _, tag := range q.TopicTags {
				tags = append(tags, tag.Name)
			}
			return &Problem{
				ID:               parseProblemID(q.QuestionFrontendID),
				Slug:             slug,
				Title:            q.Title,
				TitleCN:          q.TranslatedTitle,
				Difficulty:       q.Difficulty,
				AcRate:           q.AcRate,
				Link:             fmt.Sprintf("%s/problems/%s/", DomainPrimary.BaseURL(), slug),
				Category:         titleCase(q.CategoryTitle),
				PaidOnly:         q.IsPaidOnly,
				Content:          q.Content,
				ContentCN:        q.TranslatedContent,
				Tags:             tags,
				SimilarQuestions: similar,
			}, nil
		},
	)
	if err != nil {
		return nil
	}
	return detail
}

// waitRatingsGap blocks until the minimum spacing since the end of the
// previous ratings-feed request has elapsed. ratingsFetchMu must be
// held.
func (lc *LeetCode) waitRatingsGap(ctx context.Context) error {
	wait := lc.ratingsMinInterval - lc.now().Sub(lc.lastRatingsFetch)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchRatings downloads the full external ratings feed. The feed is
// tab-separated with a header row: rating, id, title, title_cn, slug,
// contest, problem_index. Requests are serialized, with a minimum gap
// between attempts measured from the end of the previous request.
func (lc *LeetCode) fetchRatings(ctx context.Context) (map[int]RatingInfo, error) {
	return withRetry(
		ctx,
		lc.logger,
		"ratings feed",
		lc.config.MaxRetries,
		lc.config.RetryDelay,
		func(ctx context.Context) (map[int]RatingInfo, error) {
			lc.ratingsFetchMu.Lock()
			defer lc.ratingsFetchMu.Unlock()
			if err := lc.waitRatingsGap(ctx); err != nil {
				return nil, err
			}
			defer func() {
				lc.lastRatingsFetch = lc.now()
			}()
			reqCtx, cancel := context.WithTimeout(ctx, lc.config.RequestTimeout)
			defer cancel()
			req, err := http.NewRequestWithContext(
				reqCtx, http.MethodGet, lc.ratingsURL, nil,
			)
			if err != nil {
				return nil, err
			}
			res, err := lc.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer func() {
				_ = res.Body.Close()
			}()
			if res.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("HTTP %d from %s", res.StatusCode, lc.ratingsURL)
			}
			ratings := parseRatingsFeed(res.Body)
			lc.logger.Info("downloaded ratings", "count", len(ratings))
			return ratings, nil
		},
	)
}

func parseRatingsFeed(r io.Reader) map[int]RatingInfo {
	ratings := map[int]RatingInfo{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		parts := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
		for len(parts) < 7 {
			parts = append(parts, "")
		}
		id, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		ratingValue, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			continue
		}
		ratings[id] = RatingInfo{
			ID:           id,
			Rating:       ratingValue,
			Title:        parts[2],
			TitleCN:      parts[3],
			Slug:         parts[4],
			Contest:      parts[5],
			ProblemIndex: parts[6],
		}
	}
	return ratings
}

// cachedRating reports the in-memory cache state for one problem:
// whether the cache is still fresh, and the entry if present.
func (lc *LeetCode) cachedRating(problemID int) (info RatingInfo, found bool, fresh bool) {
	lc.ratingsMu.Lock()
	defer lc.ratingsMu.Unlock()
	fresh = len(lc.ratings) > 0 &&
		lc.now().Sub(lc.ratingsUpdatedAt) <= lc.config.RatingsTTL
	info, found = lc.ratings[problemID]
	return info, found, fresh
}

// replaceRatings swaps in a fresh snapshot of the feed.
func (lc *LeetCode) replaceRatings(ratings map[int]RatingInfo) {
	lc.ratingsMu.Lock()
	defer lc.ratingsMu.Unlock()
	lc.ratings = ratings
	lc.ratingsUpdatedAt = lc.now()
}

// applyRatingInfo merges a ratings-feed entry into the stored problem
// record, if one exists.
func (lc *LeetCode) applyRatingInfo(ctx context.Context, problemID int, info RatingInfo) {
	p, err := lc.db.GetProblemByID(ctx, problemID)
	if err != nil || p == nil {
		return
	}
	p.Merge(
		Problem{
			Rating:       info.Rating,
			Title:        info.Title,
			TitleCN:      info.TitleCN,
			Slug:         info.Slug,
			Contest:      info.Contest,
			ProblemIndex: info.ProblemIndex,
		},
	)
	if err = lc.db.SaveProblem(ctx, p); err != nil {
		lc.logger.Error(
			"error persisting rating",
			"problem_id", problemID,
			tint.Err(err),
		)
	}
}

// GetRating resolves the rating for a problem.
//
// The store is checked first: a positive stored rating short-circuits
// without any network activity. Otherwise the in-memory feed cache is
// consulted; while the cache is fresh, an absent entry is an
// authoritative zero (unrated), not a miss that forces a refetch. Only
// an expired or empty cache triggers a wholesale feed refresh. A failed
// refresh leaves the cache unchanged and yields zero.
func (lc *LeetCode) GetRating(ctx context.Context, problemID int) float64 {
	p, err := lc.db.GetProblemByID(ctx, problemID)
	if err == nil && p != nil && p.Rating > 0 {
		return p.Rating
	}

	info, found, fresh := lc.cachedRating(problemID)
	if fresh {
		if !found {
			return 0
		}
		lc.applyRatingInfo(ctx, problemID, info)
		return info.Rating
	}

	updated, err := lc.fetchRatings(ctx)
	if err != nil || len(updated) == 0 {
		return 0
	}
	lc.replaceRatings(updated)
	info, found = updated[problemID]
	if !found {
		return 0
	}
	lc.applyRatingInfo(ctx, problemID, info)
	return info.Rating
}

func (lc *LeetCode) lookupProblem(
	ctx context.Context,
	problemID int,
	slug string,
) (*Problem, error) {
	if problemID > 0 {
		return lc.db.GetProblemByID(ctx, problemID)
	}
	if slug != "" {
		return lc.db.GetProblemBySlug(ctx, slug)
	}
	return nil, fmt.Errorf("either problem id or slug is required")
}

// GetProblem returns the canonical record for a problem, identified by
// ID or slug.
//
// A store miss triggers one full list resync before giving up. Records
// missing detail fields get a detail fetch merged in; records with no
// rating get a ratings lookup. Augmentation failures leave the record
// as it was, and the caller still receives whatever was already known.
func (lc *LeetCode) GetProblem(
	ctx context.Context,
	problemID int,
	slug string,
) (*Problem, error) {
	p, err := lc.lookupProblem(ctx, problemID, slug)
	if err != nil {
		return nil, err
	}

	if p == nil {
		lc.logger.Info(
			"problem not found, running full resync",
			"problem_id", problemID,
			"slug", slug,
		)
		if _, resyncErr := lc.ResyncProblems(ctx); resyncErr != nil && ctx.Err() != nil {
			return nil, resyncErr
		}
		p, err = lc.lookupProblem(ctx, problemID, slug)
		if err != nil {
			return nil, err
		}
		if p == nil {
			lc.logger.Warn(
				"problem not found after full resync",
				"problem_id", problemID,
				"slug", slug,
			)
			return nil, nil
		}
	}

	if p.Slug != "" && !p.HasDetail() {
		if detail := lc.fetchProblemDetail(ctx, p.Slug); detail != nil {
			p.Merge(*detail)
			if saveErr := lc.db.SaveProblem(ctx, p); saveErr != nil {
				lc.logger.Error(
					"error persisting problem detail",
					"problem_id", p.ID,
					tint.Err(saveErr),
				)
			}
		}
	}

	if p.Rating == 0 {
		lc.GetRating(ctx, p.ID)
		if refreshed, refreshErr := lc.db.GetProblemByID(ctx, p.ID); refreshErr == nil &&
			refreshed != nil {
			p = refreshed
		}
	}

	return p, nil
}

type dailyQuestion struct {
	FrontendQuestionID string  `json:"frontendQuestionId"`
	Title              string  `json:"title"`
	TitleCN            string  `json:"titleCn"`
	TitleSlug          string  `json:"titleSlug"`
	Difficulty         string  `json:"difficulty"`
	AcRate             float64 `json:"acRate"`
	PaidOnly           bool    `json:"paidOnly"`
	TopicTags          []struct {
		Name string `json:"name"`
	} `json:"topicTags"`
}

type dailyPrimaryResponse struct {
	Data struct {
		Active *struct {
			Date     string        `json:"date"`
			Link     string        `json:"link"`
			Question dailyQuestion `json:"question"`
		} `json:"activeDailyCodingChallengeQuestion"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type dailyRegionalResponse struct {
	Data struct {
		TodayRecord []struct {
			Date     string        `json:"date"`
			Question dailyQuestion `json:"question"`
		} `json:"todayRecord"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// dailyFeedResult is the normalized "challenge of the day" reference,
// the same shape regardless of which domain's API produced it.
type dailyFeedResult struct {
	Date       string
	ProblemID  int
	Slug       string
	Title      string
	TitleCN    string
	Difficulty string
	AcRate     float64
	Link       string
	Tags       StringSlice
}

func (lc *LeetCode) fetchDailyFeed(ctx context.Context) (*dailyFeedResult, error) {
	query := queryDailyPrimary
	if lc.domain == DomainRegional {
		query = queryDailyRegional
	}
	payload := graphqlRequest{Query: query, OperationName: "questionOfToday"}

	return withRetry(
		ctx,
		lc.logger,
		"daily challenge",
		lc.config.MaxRetries,
		lc.config.RetryDelay,
		func(ctx context.Context) (*dailyFeedResult, error) {
			if lc.domain == DomainRegional {
				var response dailyRegionalResponse
				err := lc.doJSON(ctx, http.MethodPost, lc.graphqlURL(), payload, &response)
				if err != nil {
					return nil, err
				}
				if len(response.Errors) > 0 {
					return nil, fmt.Errorf("graphql error: %s", response.Errors[0].Message)
				}
				if len(response.Data.TodayRecord) == 0 {
					return nil, fmt.Errorf("empty todayRecord response")
				}
				record := response.Data.TodayRecord[0]
				q := record.Question
				result := newDailyFeedResult(record.Date, q)
				// The regional API reports the AC rate as a fraction.
				result.AcRate = q.AcRate * 100
				result.Link = fmt.Sprintf("%s/problems/%s/", lc.baseURL, q.TitleSlug)
				return result, nil
			}

			var response dailyPrimaryResponse
			err := lc.doJSON(ctx, http.MethodPost, lc.graphqlURL(), payload, &response)
			if err != nil {
				return nil, err
			}
			if len(response.Errors) > 0 {
				return nil, fmt.Errorf("graphql error: %s", response.Errors[0].Message)
			}
			active := response.Data.Active
			if active == nil {
				return nil, fmt.Errorf("empty daily challenge response")
			}
			result := newDailyFeedResult(active.Date, active.Question)
			result.Link = lc.baseURL + active.Link
			return result, nil
		},
	)
}

func newDailyFeedResult(date string, q dailyQuestion) *dailyFeedResult {
	tags := make(StringSlice, 0, len(q.TopicTags))
	for _, tag := range q.TopicTags {
		tags = append(tags, tag.Name)
	}
	return &dailyFeedResult{
		Date:       date,
		ProblemID:  parseProblemID(q.FrontendQuestionID),
		Slug:       q.TitleSlug,
		Title:      q.Title,
		TitleCN:    q.TitleCN,
		Difficulty: q.Difficulty,
		AcRate:     q.AcRate,
		Tags:       tags,
	}
}

// FetchDailyChallenge fetches the domain's current "challenge of the
// day", enriches it via GetProblem and persists the result.
func (lc *LeetCode) FetchDailyChallenge(ctx context.Context) (*DailyChallenge, error) {
	feed, err := lc.fetchDailyFeed(ctx)
	if err != nil || feed == nil {
		return nil, err
	}

	// Start from the canonical record, then let non-empty feed fields
	// win: the feed is fresher than anything cached.
	var base Problem
	if p, problemErr := lc.GetProblem(ctx, feed.ProblemID, feed.Slug); problemErr == nil &&
		p != nil {
		base = *p
	}
	base.Merge(
		Problem{
			ID:         feed.ProblemID,
			Slug:       feed.Slug,
			Title:      feed.Title,
			TitleCN:    feed.TitleCN,
			Difficulty: feed.Difficulty,
			AcRate:     feed.AcRate,
			Link:       feed.Link,
			Tags:       feed.Tags,
		},
	)
	if base.ID == 0 {
		base.ID = feed.ProblemID
	}

	daily := newDailyChallenge(feed.Date, lc.domain, base)
	if err = lc.db.UpsertDaily(ctx, daily); err != nil {
		lc.logger.Error(
			"error persisting daily challenge",
			"date", feed.Date,
			tint.Err(err),
		)
		return daily, nil
	}
	lc.logger.Info(
		"daily challenge stored",
		"date", feed.Date,
		"domain", lc.domain,
		"problem_id", base.ID,
	)
	return daily, nil
}

// legacyDailyFile matches the per-day JSON files written by earlier
// versions of the bot, kept around so historical data replays into the
// database on first request.
type legacyDailyFile struct {
	Date       string      `json:"date"`
	Domain     string      `json:"domain"`
	QID        flexInt     `json:"qid"`
	Slug       string      `json:"slug"`
	Title      string      `json:"title"`
	TitleCN    string      `json:"title_cn"`
	Difficulty string      `json:"difficulty"`
	AcRate     float64     `json:"ac_rate"`
	Link       string      `json:"link"`
	Tags       StringSlice `json:"tags"`
}

// flexInt tolerates both numeric and string-encoded IDs in legacy files.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (lc *LeetCode) legacyDailyPath(date string) string {
	yy := date[:4]
	mm := date[5:7]
	return filepath.Join(
		lc.config.DataDir, string(lc.domain), "daily", yy, mm, date+".json",
	)
}

// loadLegacyDaily replays a cached per-day JSON file into the store,
// enriching it through GetProblem first. Returns nil if no usable file
// exists for the date.
func (lc *LeetCode) loadLegacyDaily(ctx context.Context, date string) *DailyChallenge {
	path := lc.legacyDailyPath(date)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var legacy legacyDailyFile
	if err = json.Unmarshal(data, &legacy); err != nil {
		lc.logger.Error("error reading legacy daily file", "path", path, tint.Err(err))
		return nil
	}
	lc.logger.Info("found legacy challenge data", "path", path)
	if legacy.Date == "" {
		legacy.Date = date
	}

	var base Problem
	if p, problemErr := lc.GetProblem(ctx, int(legacy.QID), legacy.Slug); problemErr == nil &&
		p != nil {
		base = *p
	}
	base.Merge(
		Problem{
			ID:         int(legacy.QID),
			Slug:       legacy.Slug,
			Title:      legacy.Title,
			TitleCN:    legacy.TitleCN,
			Difficulty: legacy.Difficulty,
			AcRate:     legacy.AcRate,
			Link:       legacy.Link,
			Tags:       legacy.Tags,
		},
	)
	if base.ID == 0 {
		base.ID = int(legacy.QID)
	}

	daily := newDailyChallenge(legacy.Date, lc.domain, base)
	if err = lc.db.UpsertDaily(ctx, daily); err != nil {
		lc.logger.Error(
			"error persisting legacy daily challenge",
			"date", legacy.Date,
			tint.Err(err),
		)
	}
	return daily
}

// GetDailyChallenge resolves the daily challenge for a date (default:
// today in the domain's canonical timezone).
//
// Resolution order: the store, a legacy cached file, a live fetch (for
// today only), then, for historical dates on the primary domain, the
// monthly archive, in which case the requested day is resolved
// synchronously and the rest of the month is enriched by a detached
// background task.
//
// Malformed and future dates are rejected before any network call.
func (lc *LeetCode) GetDailyChallenge(
	ctx context.Context,
	dateStr string,
) (*DailyChallenge, error) {
	loc := lc.domain.Location()
	today := lc.now().In(loc).Format(dateLayout)
	if dateStr == "" {
		dateStr = today
	}
	parsed, err := parseChallengeDate(dateStr, lc.domain, lc.now())
	if err != nil {
		return nil, err
	}

	daily, err := lc.db.GetDaily(ctx, dateStr, lc.domain)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		lc.logger.Debug("daily challenge found in store", "date", dateStr)
		return daily, nil
	}

	if daily = lc.loadLegacyDaily(ctx, dateStr); daily != nil {
		return daily, nil
	}

	if dateStr == today {
		return lc.FetchDailyChallenge(ctx)
	}

	if lc.domain != DomainPrimary {
		return nil, nil
	}

	year, month := parsed.Year(), int(parsed.Month())
	monthly, err := lc.FetchMonthlyChallenges(ctx, year, month)
	if err != nil || monthly == nil || len(monthly.Challenges) == 0 {
		return nil, err
	}
	lc.logger.Info(
		"resolved monthly archive",
		"year", year,
		"month", month,
		"challenges", len(monthly.Challenges),
	)

	var requested *ChallengeRef
	remaining := make([]ChallengeRef, 0, len(monthly.Challenges))
	for i := range monthly.Challenges {
		ref := monthly.Challenges[i]
		if ref.Date == dateStr {
			requested = &ref
		} else {
			remaining = append(remaining, ref)
		}
	}
	if requested == nil || requested.ProblemID == 0 || requested.Slug == "" {
		lc.logger.Warn(
			"requested date missing from monthly archive",
			"date", dateStr,
		)
		return nil, nil
	}

	p, err := lc.GetProblem(ctx, requested.ProblemID, requested.Slug)
	if err != nil || p == nil {
		return nil, err
	}
	daily = newDailyChallenge(dateStr, lc.domain, *p)
	if err = lc.db.UpsertDaily(ctx, daily); err != nil {
		lc.logger.Error(
			"error persisting daily challenge",
			"date", dateStr,
			tint.Err(err),
		)
	}

	if len(remaining) > 0 {
		lc.enrichChallenges(remaining)
		lc.logger.Info(
			"started background enrichment",
			"year", year,
			"month", month,
			"count", len(remaining),
		)
	}

	return daily, nil
}

type monthlyResponse struct {
	Data struct {
		DailyCodingChallengeV2 *struct {
			Challenges       []monthlyChallengeEntry `json:"challenges"`
			WeeklyChallenges []monthlyChallengeEntry `json:"weeklyChallenges"`
		} `json:"dailyCodingChallengeV2"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type monthlyChallengeEntry struct {
	Date       string `json:"date"`
	UserStatus string `json:"userStatus"`
	Link       string `json:"link"`
	Question   struct {
		QuestionFrontendID string `json:"questionFrontendId"`
		Title              string `json:"title"`
		TitleSlug          string `json:"titleSlug"`
		IsPaidOnly         bool   `json:"isPaidOnly"`
	} `json:"question"`
}

// ChallengeRef is one day's (or week's) challenge reference from the
// monthly archive, before enrichment.
type ChallengeRef struct {
	Date       string `json:"date"`
	UserStatus string `json:"user_status"`
	Link       string `json:"link"`
	ProblemID  int    `json:"question_id"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	PaidOnly   bool   `json:"paid_only"`
}

// MonthlyChallenges holds the daily and weekly challenge references for
// one archive month.
type MonthlyChallenges struct {
	Year             int            `json:"year"`
	Month            int            `json:"month"`
	Challenges       []ChallengeRef `json:"challenges"`
	WeeklyChallenges []ChallengeRef `json:"weekly_challenges"`
}

// FetchMonthlyChallenges fetches all daily and weekly challenge
// references for a month. Only the primary domain serves the archive,
// and only from April 2020 onward; anything else returns nil without a
// network call.
func (lc *LeetCode) FetchMonthlyChallenges(
	ctx context.Context,
	year int,
	month int,
) (*MonthlyChallenges, error) {
	if lc.domain != DomainPrimary {
		lc.logger.Warn("monthly challenges are only available on the primary domain")
		return nil, nil
	}
	if year < archiveEpochYear ||
		(year == archiveEpochYear && month < archiveEpochMonth) {
		lc.logger.Warn(
			"monthly archive starts at 2020-04",
			"year", year,
			"month", month,
		)
		return nil, nil
	}

	payload := graphqlRequest{
		Query: queryMonthlyChallenges,
		Variables: map[string]any{
			"year":  year,
			"month": month,
		},
		OperationName: "dailyCodingQuestionRecords",
	}

	monthly, err := withRetry(
		ctx,
		lc.logger,
		fmt.Sprintf("monthly challenges %d-%02d", year, month),
		lc.config.MaxRetries,
		lc.config.RetryDelay,
		func(ctx context.Context) (*MonthlyChallenges, error) {
			var response monthlyResponse
			err := lc.doJSON(ctx, http.MethodPost, lc.graphqlURL(), payload, &response)
			if err != nil {
				return nil, err
			}
			if len(response.Errors) > 0 {
				return nil, fmt.Errorf("graphql error: %s", response.Errors[0].Message)
			}
			data := response.Data.DailyCodingChallengeV2
			if data == nil {
				return nil, fmt.Errorf("empty monthly challenge response")
			}
			result := &MonthlyChallenges{Year: year, Month: month}
			for _, entry := range data.Challenges {
				result.Challenges = append(result.Challenges, newChallengeRef(entry))
			}
			for _, entry := range data.WeeklyChallenges {
				result.WeeklyChallenges = append(
					result.WeeklyChallenges, newChallengeRef(entry),
				)
			}
			return result, nil
		},
	)
	if err != nil {
		return nil, nil
	}
	return monthly, nil
}

func newChallengeRef(entry monthlyChallengeEntry) ChallengeRef {
	return ChallengeRef{
		Date:       entry.Date,
		UserStatus: entry.UserStatus,
		Link:       entry.Link,
		ProblemID:  parseProblemID(entry.Question.QuestionFrontendID),
		Title:      entry.Question.Title,
		Slug:       entry.Question.TitleSlug,
		PaidOnly:   entry.Question.IsPaidOnly,
	}
}

// enrichChallenges starts a detached background task that resolves each
// challenge reference through GetProblem and persists the daily row.
// Simultaneous detail fetches are capped by the client's semaphore, and
// a small delay separates item launches to respect upstream rate
// limits. Per-item failures are logged and skipped; cancellation stops
// the whole task.
func (lc *LeetCode) enrichChallenges(refs []ChallengeRef) {
	lc.bgTasks.Add(1)
	go func() {
		defer lc.bgTasks.Done()
		ctx := lc.bgCtx

		var itemTasks sync.WaitGroup
		var processed int64
		var processedMu sync.Mutex

		for _, ref := range refs {
			if ctx.Err() != nil {
				lc.logger.Info("background enrichment cancelled")
				break
			}
			if ref.Date == "" || ref.ProblemID == 0 || ref.Slug == "" {
				continue
			}
			// Launches are paced by the limiter and capped in flight by
			// the semaphore.
			if err := lc.enrichLimiter.Wait(ctx); err != nil {
				lc.logger.Info("background enrichment cancelled")
				break
			}
			if err := lc.fetchSem.Acquire(ctx, 1); err != nil {
				lc.logger.Info("background enrichment cancelled")
				break
			}
			itemTasks.Add(1)
			go func(ref ChallengeRef) {
				defer itemTasks.Done()
				defer lc.fetchSem.Release(1)

				p, err := lc.GetProblem(ctx, ref.ProblemID, ref.Slug)
				if err != nil || p == nil {
					if ctx.Err() == nil {
						lc.logger.Error(
							"error enriching challenge",
							"date", ref.Date,
							tint.Err(err),
						)
					}
					return
				}
				daily := newDailyChallenge(ref.Date, lc.domain, *p)
				if err = lc.db.UpsertDaily(ctx, daily); err != nil {
					lc.logger.Error(
						"error persisting enriched challenge",
						"date", ref.Date,
						tint.Err(err),
					)
					return
				}
				processedMu.Lock()
				processed++
				processedMu.Unlock()
			}(ref)
		}

		itemTasks.Wait()
		processedMu.Lock()
		defer processedMu.Unlock()
		lc.logger.Info(
			"background enrichment finished",
			"processed", processed,
			"total", len(refs),
		)
	}()
}

type recentSubmissionsResponse struct {
	Data struct {
		RecentAcSubmissionList []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			TitleSlug string `json:"titleSlug"`
			Timestamp string `json:"timestamp"`
		} `json:"recentAcSubmissionList"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// FetchRecentSubmissions returns a user's recent accepted submissions.
// The limit is clamped to [1, MaxSubmissionLimit]. Only the primary
// domain exposes this feed; failures yield an empty result.
func (lc *LeetCode) FetchRecentSubmissions(
	ctx context.Context,
	username string,
	limit int,
) []SubmissionRef {
	if lc.domain != DomainPrimary {
		lc.logger.Warn("user submissions are only available on the primary domain")
		return nil
	}
	if limit <= 0 {
		limit = DefaultSubmissionLimit
	}
	if limit > MaxSubmissionLimit {
		limit = MaxSubmissionLimit
	}

	payload := graphqlRequest{
		Query: queryRecentSubmissions,
		Variables: map[string]any{
			"username": username,
			"limit":    limit,
		},
		OperationName: "recentAcSubmissions",
	}

	submissions, err := withRetry(
		ctx,
		lc.logger,
		fmt.Sprintf("recent submissions for %q", username),
		lc.config.MaxRetries,
		lc.config.RetryDelay,
		func(ctx context.Context) ([]SubmissionRef, error) {
			var response recentSubmissionsResponse
			err := lc.doJSON(ctx, http.MethodPost, lc.graphqlURL(), payload, &response)
			if err != nil {
				return nil, err
			}
			if len(response.Errors) > 0 {
				return nil, fmt.Errorf("graphql error: %s", response.Errors[0].Message)
			}
			refs := make([]SubmissionRef, 0, len(response.Data.RecentAcSubmissionList))
			for _, s := range response.Data.RecentAcSubmissionList {
				ts, _ := strconv.ParseInt(s.Timestamp, 10, 64)
				refs = append(
					refs, SubmissionRef{
						SubmissionID: s.ID,
						Title:        s.Title,
						Slug:         s.TitleSlug,
						Timestamp:    ts,
						SubmittedAt:  time.Unix(ts, 0).UTC(),
					},
				)
			}
			return refs, nil
		},
	)
	if err != nil {
		return nil
	}
	lc.logger.Info(
		"fetched recent submissions",
		"username", username,
		"count", len(submissions),
	)
	return submissions
}

// titleCase uppercases the first letter of a category name
// ("algorithms" becomes "Algorithms").
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
