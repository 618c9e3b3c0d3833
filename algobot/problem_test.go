package algobot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemMergeFillsEmptyFields(t *testing.T) {
	p := Problem{
		ID:    1,
		Slug:  "two-sum",
		Title: "Two Sum",
	}
	p.Merge(
		Problem{
			TitleCN:    "两数之和",
			Difficulty: DifficultyEasy,
			AcRate:     52.3,
			Rating:     1200,
			Tags:       StringSlice{"array", "hash-table"},
			Content:    "<p>Given an array...</p>",
		},
	)

	assert.Equal(t, "Two Sum", p.Title)
	assert.Equal(t, "两数之和", p.TitleCN)
	assert.Equal(t, DifficultyEasy, p.Difficulty)
	assert.Equal(t, 52.3, p.AcRate)
	assert.Equal(t, float64(1200), p.Rating)
	assert.Equal(t, StringSlice{"array", "hash-table"}, p.Tags)
}

func TestProblemMergeEmptyUpdateIsNoOp(t *testing.T) {
	p := Problem{
		ID:         1,
		Slug:       "two-sum",
		Title:      "Two Sum",
		TitleCN:    "两数之和",
		Difficulty: DifficultyEasy,
		AcRate:     52.3,
		Rating:     1200,
		Tags:       StringSlice{"array"},
		Content:    "<p>statement</p>",
	}
	before := p

	p.Merge(Problem{})

	assert.Equal(t, before, p)
}

func TestProblemMergeNonEmptyIncomingWins(t *testing.T) {
	p := Problem{ID: 1, Slug: "two-sum"}
	p.Merge(Problem{Title: "Two Sum", AcRate: 50})
	p.Merge(Problem{Title: "Two Sum (updated)", AcRate: 51.5})

	assert.Equal(t, "Two Sum (updated)", p.Title)
	assert.Equal(t, 51.5, p.AcRate)
}

func TestProblemHasDetail(t *testing.T) {
	p := Problem{ID: 1, Title: "Two Sum"}
	assert.False(t, p.HasDetail())

	p.Tags = StringSlice{"array"}
	assert.False(t, p.HasDetail())

	p.Content = "<p>statement</p>"
	assert.True(t, p.HasDetail())
}

func TestDifficultyName(t *testing.T) {
	assert.Equal(t, DifficultyEasy, difficultyName(1))
	assert.Equal(t, DifficultyMedium, difficultyName(2))
	assert.Equal(t, DifficultyHard, difficultyName(3))
	assert.Equal(t, "Unknown", difficultyName(0))
}

func TestParseChallengeDate(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		parsed, err := parseChallengeDate("2024-06-14", DomainPrimary, now)
		require.NoError(t, err)
		assert.Equal(t, 2024, parsed.Year())
		assert.Equal(t, time.June, parsed.Month())
		assert.Equal(t, 14, parsed.Day())
	})

	t.Run("today is not future", func(t *testing.T) {
		_, err := parseChallengeDate("2024-06-15", DomainPrimary, now)
		assert.NoError(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, bad := range []string{"06/14/2024", "2024-6-14", "yesterday", ""} {
			_, err := parseChallengeDate(bad, DomainPrimary, now)
			assert.ErrorIs(t, err, ErrInvalidDate, "input %q", bad)
		}
	})

	t.Run("future", func(t *testing.T) {
		_, err := parseChallengeDate("2024-06-16", DomainPrimary, now)
		assert.ErrorIs(t, err, ErrFutureDate)
	})

	t.Run("future depends on domain timezone", func(t *testing.T) {
		// 2024-06-15 20:00 UTC is already 2024-06-16 in Asia/Shanghai.
		evening := time.Date(2024, 6, 15, 20, 0, 0, 0, time.UTC)
		_, err := parseChallengeDate("2024-06-16", DomainRegional, evening)
		assert.NoError(t, err)

		_, err = parseChallengeDate("2024-06-16", DomainPrimary, evening)
		assert.ErrorIs(t, err, ErrFutureDate)
	})
}

func TestDailyChallengeRoundTrip(t *testing.T) {
	p := Problem{
		ID:         1,
		Slug:       "two-sum",
		Title:      "Two Sum",
		Difficulty: DifficultyEasy,
		Rating:     1200,
		Tags:       StringSlice{"array"},
	}
	daily := newDailyChallenge("2024-06-14", DomainPrimary, p)

	assert.Equal(t, "2024-06-14", daily.Date)
	assert.Equal(t, DomainPrimary, daily.Domain)
	assert.Equal(t, p, daily.Problem())
}

func TestDomain(t *testing.T) {
	assert.True(t, DomainPrimary.Valid())
	assert.True(t, DomainRegional.Valid())
	assert.False(t, Domain("jp").Valid())

	assert.Equal(t, "UTC", DomainPrimary.Location().String())
	assert.Equal(t, "Asia/Shanghai", DomainRegional.Location().String())
}
