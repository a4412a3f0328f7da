package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"listingscout/internal/config"
	"listingscout/internal/listings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowConfig_MapsFileConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.Search.HomeURL = "https://www.google.co.uk"
	c.Search.ResultsWait = "3s"
	c.Listings.MaxPages = 4
	c.Listings.VisitDetails = true
	c.Challenge.HoldDuration = "7s"
	c.Challenge.ClearTimeout = "bogus"

	wc := workflowConfig(c)
	assert.Equal(t, "https://www.google.co.uk", wc.Google.HomeURL)
	assert.Equal(t, "https://www.zillow.com/", wc.Zillow.StartURL)
	assert.Equal(t, "zillow.com", wc.Search.TargetDomain)
	assert.Equal(t, 3*time.Second, wc.Search.ResultsWait)
	assert.Equal(t, 4, wc.Listings.MaxPages)
	assert.True(t, wc.Listings.VisitDetails)
	assert.Equal(t, 7*time.Second, wc.Challenge.HoldDuration)
	assert.Equal(t, 15*time.Second, wc.Challenge.ClearTimeout, "unparsable durations fall back")
	assert.Equal(t, 10, wc.Listings.MaxScrollRounds)
}

func TestBrowserConfig_MapsFileConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.Browser.Headless = false
	c.Browser.Bin = "/usr/bin/chromium"
	c.Browser.NavigationTimeout = "45s"

	bc := browserConfig(c)
	assert.False(t, bc.Headless)
	assert.Equal(t, "/usr/bin/chromium", bc.Bin)
	assert.Equal(t, 45*time.Second, bc.NavigationTimeout())
	assert.Equal(t, config.DefaultUserAgent, bc.UserAgent)
	assert.Equal(t, 100, bc.WindowJitter)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "search", "navigate", "workflow", "scrape"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	for _, flag := range []string{"config", "verbose", "headless", "timeout"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestArgValidation(t *testing.T) {
	assert.Error(t, workflowCmd.Args(workflowCmd, []string{"only query"}))
	assert.NoError(t, workflowCmd.Args(workflowCmd, []string{"q", "loc"}))
	assert.Error(t, searchCmd.Args(searchCmd, nil))
	assert.Error(t, serveCmd.Args(serveCmd, []string{"extra"}))
}

func TestNavigate_NoLocationPrintsSentinel(t *testing.T) {
	t.Setenv("SCOUT_DIAGNOSTICS_DIR", t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"navigate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var got []listings.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &got), out.String())
	assert.Equal(t, []listings.Record{listings.Sentinel()}, got)
}

func TestWriteJSON_Indented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string][]string{"links": {"a"}}))
	assert.Equal(t, "{\n  \"links\": [\n    \"a\"\n  ]\n}\n", buf.String())
}

func TestMain(m *testing.M) {
	// Keep a developer's .env out of the tests.
	if err := os.Chdir(os.TempDir()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
