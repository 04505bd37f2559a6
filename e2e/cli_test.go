package e2e_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gameauth/internal/factory"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "gameauth-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/gameauth")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

// run invokes the CLI in json mode, returning stdout and stderr separately
func (r *cliRunner) run(args ...string) (string, string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = append(os.Environ(), "GAMEAUTH_TOKEN=")
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (r *cliRunner) runWithToken(token string, args ...string) (string, string, error) {
	return r.run(append([]string{"--token", token}, args...)...)
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app      *factory.TestApp
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	app := factory.NewTestApp()
	server := &http.Server{
		Addr:              addr,
		Handler:           app.Router(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := "http://" + addr
	waitForServer(t, serverURL+"/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	HasPassword bool   `json:"hasPassword"`
	LoginCount  int64  `json:"loginCount"`
	GameStats   struct {
		HighScore   int64 `json:"highScore"`
		GamesPlayed int64 `json:"gamesPlayed"`
	} `json:"gameStats"`
}

type authResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresIn string       `json:"expiresIn"`
}

type otpVerifyResponse struct {
	User          *userResponse `json:"user"`
	Token         string        `json:"token"`
	NeedsUsername bool          `json:"needsUsername"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type leaderboardResponse struct {
	Leaderboard []struct {
		Rank      int    `json:"rank"`
		Username  string `json:"username"`
		HighScore int64  `json:"highScore"`
	} `json:"leaderboard"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v), "output: %s", raw)
	return v
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	stdout, stderr, err := cli.run("health")
	require.NoError(t, err, "stderr: %s", stderr)

	resp := decode[struct {
		Status string `json:"status"`
	}](t, stdout)
	assert.Equal(t, "OK", resp.Status)
}

func TestCLI_PasswordLifecycle(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	stdout, stderr, err := cli.run("auth", "signup",
		"--email", "alice@example.com", "--username", "alice", "--password", "secret123")
	require.NoError(t, err, "stderr: %s", stderr)
	signup := decode[authResponse](t, stdout)
	assert.Equal(t, "alice", signup.User.Username)
	assert.Equal(t, "7d", signup.ExpiresIn)

	// Saved token is used automatically
	stdout, stderr, err = cli.run("auth", "me")
	require.NoError(t, err, "stderr: %s", stderr)
	me := decode[struct {
		User userResponse `json:"user"`
	}](t, stdout)
	assert.Equal(t, signup.User.ID, me.User.ID)

	_, stderr, err = cli.run("auth", "change-password", "--current", "secret123", "--new", "newpass456")
	require.NoError(t, err, "stderr: %s", stderr)

	_, stderr, err = cli.run("auth", "login", "--email", "alice@example.com", "--password", "secret123")
	require.Error(t, err)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[errorResponse](t, stderr).Error)

	stdout, stderr, err = cli.run("auth", "login", "--email", "alice@example.com", "--password", "newpass456")
	require.NoError(t, err, "stderr: %s", stderr)
	login := decode[authResponse](t, stdout)
	assert.Equal(t, int64(2), login.User.LoginCount)

	_, stderr, err = cli.run("auth", "logout")
	require.NoError(t, err, "stderr: %s", stderr)

	_, stderr, err = cli.run("auth", "me")
	require.Error(t, err)
	assert.Equal(t, "TOKEN_MISSING", decode[errorResponse](t, stderr).Error)

	// Logout is advisory, the old token still works when passed explicitly
	_, stderr, err = cli.runWithToken(login.Token, "auth", "me")
	assert.NoError(t, err, "stderr: %s", stderr)
}

func TestCLI_OTPSignup(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	_, stderr, err := cli.run("otp", "send", "--email", "new@example.com")
	require.NoError(t, err, "stderr: %s", stderr)

	code := ts.app.MockSender.LastCode("new@example.com")
	require.NotEmpty(t, code)

	stdout, stderr, err := cli.run("otp", "verify", "--email", "new@example.com", "--code", code)
	require.NoError(t, err, "stderr: %s", stderr)
	assert.True(t, decode[otpVerifyResponse](t, stdout).NeedsUsername)

	stdout, stderr, err = cli.run("otp", "verify", "--email", "new@example.com", "--code", code, "--username", "newbie")
	require.NoError(t, err, "stderr: %s", stderr)
	created := decode[otpVerifyResponse](t, stdout)
	require.NotNil(t, created.User)
	assert.False(t, created.User.HasPassword)

	stdout, stderr, err = cli.run("user", "profile")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, `"newbie"`)
}

func TestCLI_StatsAndLeaderboard(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	alice := newCLIRunner(t, ts.addr)
	bob := &cliRunner{binaryPath: alice.binaryPath, serverURL: ts.addr, tokenFile: filepath.Join(t.TempDir(), "token")}

	for _, p := range []struct {
		cli   *cliRunner
		name  string
		score string
	}{
		{alice, "alice", "300"},
		{bob, "bob", "700"},
	} {
		_, stderr, err := p.cli.run("auth", "signup",
			"--email", p.name+"@example.com", "--username", p.name, "--password", "secret123")
		require.NoError(t, err, "stderr: %s", stderr)

		_, stderr, err = p.cli.run("user", "update-stats", "--high-score", p.score, "--games", "1")
		require.NoError(t, err, "stderr: %s", stderr)
	}

	// A lower score never replaces the high score
	_, stderr, err := bob.run("user", "update-stats", "--high-score", "10")
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err := alice.run("user", "leaderboard")
	require.NoError(t, err, "stderr: %s", stderr)
	board := decode[leaderboardResponse](t, stdout)
	require.Len(t, board.Leaderboard, 2)
	assert.Equal(t, "bob", board.Leaderboard[0].Username)
	assert.Equal(t, int64(700), board.Leaderboard[0].HighScore)
	assert.Equal(t, "alice", board.Leaderboard[1].Username)

	// Deactivated accounts drop off the leaderboard
	_, stderr, err = bob.run("user", "deactivate")
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err = alice.run("user", "leaderboard")
	require.NoError(t, err, "stderr: %s", stderr)
	board = decode[leaderboardResponse](t, stdout)
	assert.Equal(t, 1, board.Pagination.Total)
}
