package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDirectoryResolvesZones(t *testing.T) {
	d, err := NewStaticDirectory(map[string]string{
		"biz-ny":  "America/New_York",
		"biz-syd": "Australia/Sydney",
	})
	require.NoError(t, err)

	loc, err := d.TimeZone(context.Background(), "biz-ny")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = d.TimeZone(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStaticDirectoryRejectsBadZone(t *testing.T) {
	_, err := NewStaticDirectory(map[string]string{"biz": "Mars/OlympusMons"})
	assert.Error(t, err)
}

func TestFixedDirectoryAnswersEveryBusiness(t *testing.T) {
	d, err := NewFixedDirectory("America/Chicago")
	require.NoError(t, err)

	for _, businessID := range []string{"biz-a", "biz-b", ""} {
		loc, err := d.TimeZone(context.Background(), businessID)
		require.NoError(t, err)
		assert.Equal(t, "America/Chicago", loc.String())
	}

	_, err = NewFixedDirectory("Nowhere/AtAll")
	assert.Error(t, err)
}

type countingDirectory struct {
	calls int
	err   error
}

func (c *countingDirectory) TimeZone(ctx context.Context, businessID string) (*time.Location, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return time.UTC, nil
}

func TestCachedDirectoryMemoizes(t *testing.T) {
	upstream := &countingDirectory{}
	d := NewCachedDirectory(upstream)

	for i := 0; i < 5; i++ {
		loc, err := d.TimeZone(context.Background(), "biz")
		require.NoError(t, err)
		assert.Equal(t, time.UTC, loc)
	}
	assert.Equal(t, 1, upstream.calls)
}

func TestCachedDirectoryDoesNotCacheErrors(t *testing.T) {
	upstream := &countingDirectory{err: errors.New("directory down")}
	d := NewCachedDirectory(upstream)

	_, err := d.TimeZone(context.Background(), "biz")
	require.Error(t, err)

	upstream.err = nil
	loc, err := d.TimeZone(context.Background(), "biz")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
	assert.Equal(t, 2, upstream.calls)
}
