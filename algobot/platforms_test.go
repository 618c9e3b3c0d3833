package algobot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const codeforcesListBody = `{"status":"OK","result":{"problems":[
	{"contestId":1,"index":"A","name":"Theatre Square","rating":1000,"tags":["math"]},
	{"contestId":1,"index":"B","name":"Spreadsheet","rating":1600,"tags":["implementation"]},
	{"contestId":2,"index":"A","name":"Winner","rating":1500,"tags":["hashing"]},
	{"contestId":2,"index":"B","name":"The least round way","tags":["dp"]}
]}}`

func testCodeforces(t testing.TB, serverURL string) *CodeforcesClient {
	t.Helper()
	c := NewCodeforcesClient(testLeetCodeConfig(t), nil)
	c.baseURL = serverURL
	return c
}

func TestCodeforcesRandomProblem(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/problemset.problems", r.URL.Path)
				calls.Add(1)
				_, _ = w.Write([]byte(codeforcesListBody))
			},
		),
	)
	t.Cleanup(server.Close)
	c := testCodeforces(t, server.URL)
	ctx := context.Background()

	p, err := c.RandomProblem(ctx, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "codeforces", p.Platform)
	assert.NotEmpty(t, p.URL)

	// The list is cached: repeated picks don't refetch.
	for i := 0; i < 5; i++ {
		_, err = c.RandomProblem(ctx, 0, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestCodeforcesRandomProblemRatingFilter(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(codeforcesListBody))
			},
		),
	)
	t.Cleanup(server.Close)
	c := testCodeforces(t, server.URL)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		p, err := c.RandomProblem(ctx, 1400, 1600)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.GreaterOrEqual(t, p.Rating, 1400)
		assert.LessOrEqual(t, p.Rating, 1600)
	}

	// Unrated problems never match a bounded range.
	for i := 0; i < 10; i++ {
		p, err := c.RandomProblem(ctx, 0, 3500)
		require.NoError(t, err)
		assert.NotEqual(t, "The least round way", p.Name)
	}

	_, err := c.RandomProblem(ctx, 2900, 3000)
	assert.Error(t, err)

	_, err = c.RandomProblem(ctx, 2000, 1000)
	assert.Error(t, err)
}

func TestCodeforcesAPIFailure(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				if !healthy.Load() {
					_, _ = w.Write(
						[]byte(`{"status":"FAILED","comment":"problemset is down"}`),
					)
					return
				}
				_, _ = w.Write([]byte(codeforcesListBody))
			},
		),
	)
	t.Cleanup(server.Close)
	c := testCodeforces(t, server.URL)
	ctx := context.Background()

	_, err := c.RandomProblem(ctx, 0, 0)
	require.NoError(t, err)

	// A failed refresh falls back to the stale cached list.
	c.mu.Lock()
	c.fetchedAt = c.fetchedAt.Add(-2 * platformListTTL)
	c.mu.Unlock()
	healthy.Store(false)

	p, err := c.RandomProblem(ctx, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestAtCoderRandomProblem(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				_, _ = w.Write(
					[]byte(
						`[{"id":"abc001_a","contest_id":"abc001","title":"A. Snow"},` +
							`{"id":"abc001_b","contest_id":"abc001","title":"B. Vis"}]`,
					),
				)
			},
		),
	)
	t.Cleanup(server.Close)
	a := NewAtCoderClient(testLeetCodeConfig(t), nil)
	a.feedURL = server.URL
	ctx := context.Background()

	p, err := a.RandomProblem(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "atcoder", p.Platform)
	assert.Contains(t, p.URL, "atcoder.jp/contests/abc001/tasks/abc001_")

	for i := 0; i < 5; i++ {
		_, err = a.RandomProblem(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestAtCoderEmptyFeed(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			},
		),
	)
	t.Cleanup(server.Close)
	a := NewAtCoderClient(testLeetCodeConfig(t), nil)
	a.feedURL = server.URL

	_, err := a.RandomProblem(context.Background())
	assert.Error(t, err)
}
