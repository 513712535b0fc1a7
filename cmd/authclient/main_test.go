package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/authtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	server  *authtest.Server
	session string
	envFile string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := authtest.NewServer(authtest.WithUser("alice", "correct-password-123", "admin"))
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	return &cli{
		server:  srv,
		session: filepath.Join(dir, "session.yaml"),
		envFile: filepath.Join(dir, "missing.env"),
	}
}

func (c *cli) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--env-file", c.envFile,
		"--base-url", c.server.URL,
		"--session-file", c.session,
	}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	c := newCLI(t)

	out, _, err := c.run("login", "-u", "alice", "-p", "correct-password-123")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as alice")
	assert.Contains(t, out, "roles: admin")

	out, _, err = c.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "alice"`)
	assert.Contains(t, out, "admin: true")

	out, _, err = c.run("request", "get", authtest.PathProtected)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRequestRecoversExpiredToken(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("login", "-u", "alice", "-p", "correct-password-123")
	require.NoError(t, err)

	c.server.ExpireAccessTokens()
	_, _, err = c.run("request", "GET", authtest.PathProtected)
	require.NoError(t, err)
	assert.Equal(t, 1, c.server.RefreshCalls())
}

func TestRequestRedirectsWhenSessionIsGone(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("login", "-u", "alice", "-p", "correct-password-123")
	require.NoError(t, err)

	c.server.ExpireAccessTokens()
	c.server.RevokeRefreshTokens()
	_, stderr, err := c.run("request", "GET", authtest.PathProtected)
	require.ErrorIs(t, err, authclient.ErrAuthFailed)
	assert.Contains(t, stderr, "-> login (return to "+authtest.PathProtected+")")

	_, _, err = c.run("whoami")
	assert.ErrorIs(t, err, authclient.ErrNotAuthenticated)
}

func TestLogoutForgetsSession(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("login", "-u", "alice", "-p", "correct-password-123")
	require.NoError(t, err)

	out, _, err := c.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")
	assert.Equal(t, 1, c.server.LogoutCalls())

	_, _, err = c.run("whoami")
	assert.ErrorIs(t, err, authclient.ErrNotAuthenticated)
}

func TestLoginRequiresCredentials(t *testing.T) {
	t.Setenv("AUTHCLIENT_PASSWORD", "")
	c := newCLI(t)
	_, _, err := c.run("login", "-u", "alice")
	assert.EqualError(t, err, "username and password are required")
}

func TestRequestRejectsBadInput(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("request", "POST", authtest.PathProtected, "-d", "{not json")
	assert.Error(t, err)

	_, _, err = c.run("request", "GET", authtest.PathProtected, "-H", "no-colon")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	out, _, err := c.run("version")
	require.NoError(t, err)
	assert.Equal(t, "authclient version "+version+"\n", out)
}
