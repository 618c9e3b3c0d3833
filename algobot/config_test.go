package algobot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePostTime(t *testing.T) {
	for _, tc := range []struct {
		value  string
		hour   int
		minute int
		ok     bool
	}{
		{"00:00", 0, 0, true},
		{"09:30", 9, 30, true},
		{"23:59", 23, 59, true},
		{"9:05", 9, 5, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"-1:30", 0, 0, false},
		{"0930", 0, 0, false},
		{"noon", 0, 0, false},
		{"", 0, 0, false},
	} {
		hour, minute, err := parsePostTime(tc.value)
		if !tc.ok {
			assert.Errorf(t, err, "expected %q to be rejected", tc.value)
			continue
		}
		require.NoErrorf(t, err, "expected %q to parse", tc.value)
		assert.Equal(t, tc.hour, hour)
		assert.Equal(t, tc.minute, minute)
	}
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, validateTimezone("UTC"))
	assert.NoError(t, validateTimezone("Asia/Shanghai"))
	assert.NoError(t, validateTimezone("America/New_York"))

	assert.Error(t, validateTimezone(""))
	assert.Error(t, validateTimezone("Mars/Olympus_Mons"))
	assert.Error(t, validateTimezone("EST5EDT oops"))
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultDatabaseType, cfg.DatabaseType)
	assert.Equal(t, DefaultPostTime, cfg.Schedule.PostTime)
	assert.Equal(t, DefaultTimezone, cfg.Schedule.Timezone)
	assert.Equal(t, DefaultOpenAIModel, cfg.OpenAI.Model)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseType = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Schedule.PostTime = "25:00"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Schedule.Timezone = "Nowhere/Fake"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LeetCode.MaxRetries = 0
	assert.Error(t, cfg.Validate())
}
