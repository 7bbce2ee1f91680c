package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_SaneValues(t *testing.T) {
	c := Default()
	assert.Equal(t, 4, c.Concurrency)
	assert.Equal(t, 3, c.MaxDepth)
	assert.Equal(t, int64(10*1024*1024), c.MaxPageSize)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "wscan/1.0", c.UserAgent)
}

func TestBindFlags_OverridesDefaults(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)

	err := fs.Parse([]string{
		"--concurrency=8",
		"--max-depth=1",
		"--timeout=5s",
		"--cookie-file=/tmp/cookies.txt",
		"--log-level=debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 8, c.Concurrency)
	assert.Equal(t, 1, c.MaxDepth)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "/tmp/cookies.txt", c.CookieFile)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestBindFlags_ShorthandFlags(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)

	err := fs.Parse([]string{"-c", "2", "-d", "5", "-t", "1s"})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Concurrency)
	assert.Equal(t, 5, c.MaxDepth)
	assert.Equal(t, time.Second, c.Timeout)
}
