package cron

import (
	"errors"
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

func TestNext(t *testing.T) {
	cases := []struct {
		name  string
		expr  string
		after string
		want  string
	}{
		{
			name:  "every five minutes",
			expr:  "0 */5 * * * *",
			after: "2024-11-15T13:58:00Z",
			want:  "2024-11-15T14:00:00Z",
		},
		{
			name:  "every second",
			expr:  "* * * * * *",
			after: "2024-11-15T13:58:00Z",
			want:  "2024-11-15T13:58:01Z",
		},
		{
			name:  "strictly after on exact match",
			expr:  "0 0 * * * *",
			after: "2024-11-15T14:00:00Z",
			want:  "2024-11-15T15:00:00Z",
		},
		{
			name:  "daily at 02:30",
			expr:  "0 30 2 * * *",
			after: "2024-11-15T03:00:00Z",
			want:  "2024-11-16T02:30:00Z",
		},
		{
			name:  "month carry",
			expr:  "0 0 0 1 * *",
			after: "2024-11-15T00:00:00Z",
			want:  "2024-12-01T00:00:00Z",
		},
		{
			name:  "year carry",
			expr:  "0 0 0 1 1 *",
			after: "2024-02-01T00:00:00Z",
			want:  "2025-01-01T00:00:00Z",
		},
		{
			name:  "weekday only",
			expr:  "0 0 9 * * 1",
			after: "2024-11-15T10:00:00Z", // a Friday
			want:  "2024-11-18T09:00:00Z", // next Monday
		},
		{
			name:  "sunday as seven",
			expr:  "0 0 12 * * 7",
			after: "2024-11-15T00:00:00Z",
			want:  "2024-11-17T12:00:00Z",
		},
		{
			name:  "dom or dow when both restricted",
			expr:  "0 0 0 13 * 5",
			after: "2024-11-10T00:00:00Z",
			// Nov 13 2024 is a Wednesday, but Fri Nov 15 comes after it; the
			// day-of-month match fires first.
			want: "2024-11-13T00:00:00Z",
		},
		{
			name:  "range with step",
			expr:  "0 0 9-17/4 * * *",
			after: "2024-11-15T10:00:00Z",
			want:  "2024-11-15T13:00:00Z",
		},
		{
			name:  "value with step runs to max",
			expr:  "30/15 * * * * *",
			after: "2024-11-15T10:00:46Z",
			want:  "2024-11-15T10:01:30Z",
		},
		{
			name:  "comma list",
			expr:  "0 0 0,12 * * *",
			after: "2024-11-15T01:00:00Z",
			want:  "2024-11-15T12:00:00Z",
		},
		{
			name:  "leap day",
			expr:  "0 0 0 29 2 *",
			after: "2024-03-01T00:00:00Z",
			want:  "2028-02-29T00:00:00Z",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sched, err := Parse(tc.expr)
			require.NoError(t, err)

			got, err := sched.Next(mustTime(t, tc.after))
			require.NoError(t, err)
			assert.Equal(t, mustTime(t, tc.want), got.UTC())
		})
	}
}

func TestNextInLocation(t *testing.T) {
	sched, err := ParseInLocation("0 0 9 * * *", "America/New_York")
	require.NoError(t, err)

	// 13:58 UTC is 08:58 in New York (EST, UTC-5), so 09:00 local is two
	// minutes away.
	got, err := sched.Next(mustTime(t, "2024-11-15T13:58:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-11-15T14:00:00Z"), got.UTC())
}

func TestNextUnsatisfiable(t *testing.T) {
	sched, err := Parse("0 0 0 30 2 *")
	require.NoError(t, err)

	_, err = sched.Next(mustTime(t, "2024-11-15T00:00:00Z"))
	assert.ErrorIs(t, err, ErrUnsatisfiable)
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"* * * * *",        // 5 fields
		"* * * * * * *",    // 7 fields
		"60 * * * * *",     // second out of range
		"* 60 * * * *",     // minute out of range
		"* * 24 * * *",     // hour out of range
		"* * * 0 * *",      // day out of range
		"* * * 32 * *",     // day out of range
		"* * * * 13 *",     // month out of range
		"* * * * * 8",      // weekday out of range
		"* * * * * a",      // not a number
		"*/0 * * * * *",    // zero step
		"5-1 * * * * *",    // inverted range
		"1-,2 * * * * *",   // malformed range
		"1,,2 * * * * *",   // empty list entry
	}
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.ErrorIs(t, err, ErrInvalidExpression)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 */5 * * * *", "UTC"))
	assert.NoError(t, Validate("0 0 3 * * 1-5", ""))
	assert.Error(t, Validate("bad", "UTC"))
	assert.Error(t, Validate("0 0 3 * * *", "Not/AZone"))

	err := Validate("0 0 3 * * *", "Not/AZone")
	assert.True(t, errors.Is(err, ErrInvalidExpression))
}
