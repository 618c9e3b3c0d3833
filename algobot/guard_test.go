package algobot

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestGuardSingleWinner(t *testing.T) {
	guard := newRequestGuard()
	key := requestKey{UserID: "user1", ProblemID: 1, Kind: requestKindTranslate}

	const concurrency = 50
	var winners atomic.Int64
	var wg sync.WaitGroup

	// Nobody calls End until every TryBegin has resolved, so exactly
	// one goroutine may win.
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.TryBegin(key) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	guard.End(key)

	assert.Equal(t, int64(1), winners.Load())
}

func TestRequestGuardReleasedKeyIsReusable(t *testing.T) {
	guard := newRequestGuard()
	key := requestKey{UserID: "user1", ProblemID: 1, Kind: requestKindInspire}

	assert.True(t, guard.TryBegin(key))
	assert.False(t, guard.TryBegin(key))

	guard.End(key)
	assert.True(t, guard.TryBegin(key))
}

func TestRequestGuardKeysAreIndependent(t *testing.T) {
	guard := newRequestGuard()
	base := requestKey{UserID: "user1", ProblemID: 1, Kind: requestKindTranslate}

	assert.True(t, guard.TryBegin(base))

	otherUser := base
	otherUser.UserID = "user2"
	assert.True(t, guard.TryBegin(otherUser))

	otherProblem := base
	otherProblem.ProblemID = 2
	assert.True(t, guard.TryBegin(otherProblem))

	otherKind := base
	otherKind.Kind = requestKindInspire
	assert.True(t, guard.TryBegin(otherKind))

	assert.False(t, guard.TryBegin(base))
}

func TestRequestGuardEndUnknownKeyIsNoOp(t *testing.T) {
	guard := newRequestGuard()
	key := requestKey{UserID: "user1", ProblemID: 1, Kind: requestKindTranslate}

	guard.End(key)
	assert.True(t, guard.TryBegin(key))
}
