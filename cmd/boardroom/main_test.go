package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/pkg/config"
)

func TestBuildSession(t *testing.T) {
	cfg := config.Default()
	session, gatherer, err := buildSession(cfg)
	require.NoError(t, err)
	defer session.Close()

	require.NotNil(t, gatherer)
	assert.Equal(t, 9, session.Roster().Len())
	assert.Empty(t, session.Mode())

	families, err := gatherer.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "runtime collectors are registered")
}

func TestBuildSessionWithoutMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	session, gatherer, err := buildSession(cfg)
	require.NoError(t, err)
	defer session.Close()
	assert.Nil(t, gatherer)
}

func TestRunFailsOnBadConfig(t *testing.T) {
	t.Setenv("BOARDROOM_WEBUI_PORT", "99999")
	assert.Equal(t, 1, run("", "", false))
}

func TestHTTPClientUsesChatTimeoutForHeaders(t *testing.T) {
	cfg := config.Default()
	cfg.Ollama.ChatTimeoutSec = 7
	cfg.Ollama.JudgeTimeoutSec = 90

	client := newHTTPClient(cfg.Ollama)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, transport.ResponseHeaderTimeout)
	assert.Zero(t, client.Timeout, "whole-request bounds come from middleware")
}
