package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func TestRound(t *testing.T) {
	in := mustTime(t, "2024-02-28T01:07:30Z")
	tests := []struct {
		m    RoundMethod
		d    time.Duration
		want string
	}{
		{Floor, 5 * time.Minute, "2024-02-28T01:05:00Z"},
		{Ceil, 5 * time.Minute, "2024-02-28T01:10:00Z"},
		{Nearest, 5 * time.Minute, "2024-02-28T01:10:00Z"},
		{Nearest, 15 * time.Minute, "2024-02-28T01:15:00Z"},
		{Nearest, 20 * time.Minute, "2024-02-28T01:00:00Z"},
		{Floor, 24 * time.Hour, "2024-02-28T00:00:00Z"},
		{Ceil, 24 * time.Hour, "2024-02-29T00:00:00Z"},
	}
	for _, tt := range tests {
		got := Round(in, tt.d, tt.m)
		assert.Equal(t, mustTime(t, tt.want), got, "%s %s", tt.m, tt.d)
	}
}

func TestRound_LocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2024, 3, 1, 1, 30, 0, 0, loc)
	got := Round(in, 24*time.Hour, Floor)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestRound_Idempotent(t *testing.T) {
	in := mustTime(t, "2024-02-28T13:47:12Z")
	for _, m := range []RoundMethod{Floor, Ceil, Nearest} {
		for _, d := range []time.Duration{30 * time.Second, 5 * time.Minute, time.Hour, 24 * time.Hour} {
			once := Round(in, d, m)
			assert.Equal(t, once, Round(once, d, m), "%s %s", m, d)
		}
	}
}

func TestRound_ZeroTime(t *testing.T) {
	assert.True(t, Round(time.Time{}, time.Hour, Floor).IsZero())
}

func TestRoundRolling(t *testing.T) {
	ref := mustTime(t, "2024-01-04T01:00:00Z")
	got := RoundRolling(mustTime(t, "2024-01-02T00:30:00Z"), 24*time.Hour, ref, Floor)
	assert.Equal(t, mustTime(t, "2024-01-01T01:00:00Z"), got)

	got = RoundRolling(mustTime(t, "2024-01-02T01:00:00Z"), 24*time.Hour, ref, Floor)
	assert.Equal(t, mustTime(t, "2024-01-02T01:00:00Z"), got)
}

func TestRoundEpochs_RollingIndex(t *testing.T) {
	epochs := []time.Time{
		mustTime(t, "2024-01-01T06:00:00Z"),
		mustTime(t, "2024-01-01T18:00:00Z"),
		mustTime(t, "2024-01-02T06:00:00Z"),
	}
	got, err := RoundEpochs(epochs, MustPeriod("1d"), true, RefIndex(-1), Floor)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		mustTime(t, "2024-01-01T06:00:00Z"),
		mustTime(t, "2024-01-01T06:00:00Z"),
		mustTime(t, "2024-01-02T06:00:00Z"),
	}, got)

	_, err = RoundEpochs(epochs, MustPeriod("1d"), true, RefIndex(5), Floor)
	assert.Error(t, err)
}

func TestParseRoundMethod(t *testing.T) {
	m, err := ParseRoundMethod("")
	require.NoError(t, err)
	assert.Equal(t, Floor, m)

	m, err = ParseRoundMethod("ROUND")
	require.NoError(t, err)
	assert.Equal(t, Nearest, m)

	_, err = ParseRoundMethod("truncate")
	assert.Error(t, err)
}

func TestParseRollingRef(t *testing.T) {
	now := mustTime(t, "2024-03-01T12:00:00Z")

	ref, err := ParseRollingRef("", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, RefIndex(-1), ref)

	ref, err = ParseRollingRef(" 2 ", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, RefIndex(2), ref)

	ref, err = ParseRollingRef("2024-02-28T01:00:00Z", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, RefAt(mustTime(t, "2024-02-28T01:00:00Z")), ref)

	_, err = ParseRollingRef("not a time", time.UTC, now)
	assert.Error(t, err)
}

func TestRound_WeeksStartOnSunday(t *testing.T) {
	wed := mustTime(t, "2024-03-06T10:00:00Z")
	got := Round(wed, 7*24*time.Hour, Floor)
	assert.Equal(t, mustTime(t, "2024-03-03T00:00:00Z"), got)
	assert.Equal(t, time.Sunday, got.Weekday())

	assert.Equal(t, mustTime(t, "2024-03-10T00:00:00Z"), Round(wed, 7*24*time.Hour, Ceil))
	// Two-week buckets follow even GPS weeks; week 2304 starts 2024-03-03.
	assert.Equal(t, mustTime(t, "2024-03-03T00:00:00Z"), Round(wed, 14*24*time.Hour, Floor))

	// Day buckets are unchanged.
	assert.Equal(t, mustTime(t, "2024-03-06T00:00:00Z"), Round(wed, 24*time.Hour, Floor))
}
