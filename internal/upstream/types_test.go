package upstream

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{
			name: "rfc3339 utc",
			in:   "2026-03-01T12:00:00Z",
			want: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "rfc3339 offset normalized",
			in:   "2026-03-01T13:00:00+01:00",
			want: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "legacy format",
			in:   "Thu Dec 13 08:41:26 +0000 2007",
			want: time.Date(2007, 12, 13, 8, 41, 26, 0, time.UTC),
		},
		{
			name: "empty",
			in:   "",
			want: time.Time{},
		},
		{
			name: "garbage",
			in:   "yesterday-ish",
			want: time.Time{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ParseTime(tc.in)

			assert.True(t, got.Equal(tc.want), "got %v, want %v", got, tc.want)
		})
	}
}

func TestWindow_Apply(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	full := url.Values{}
	Window{Since: since, Until: until}.apply(full)
	assert.Equal(t, "1772323200", full.Get("sinceTime"))
	assert.Equal(t, "1772928000", full.Get("untilTime"))

	open := url.Values{}
	Window{}.apply(open)
	assert.Empty(t, open.Get("sinceTime"))
	assert.Empty(t, open.Get("untilTime"))

	half := url.Values{}
	Window{Until: until}.apply(half)
	assert.Empty(t, half.Get("sinceTime"))
	assert.Equal(t, "1772928000", half.Get("untilTime"))
}
