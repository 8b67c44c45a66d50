package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/store"
)

// isolateEnv runs the test in an empty directory with no RTD_* variables.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, "RTD_") {
			continue
		}
		old := os.Getenv(name)
		t.Cleanup(func() { os.Setenv(name, old) })
		os.Unsetenv(name)
	}
}

func newTestRun(format string) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: format},
		IDGenerator: engine.NewFixedGenerator("run-test"),
	}
}

func TestRun_EndToEnd(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "quotes.cue", quotesFeed)
	dbPath := filepath.Join(dir, "rtd.db")

	out, err := execute(t, newRunCommand(newTestRun("text")),
		"--db", dbPath, "--duration", "400ms", "--throttle", "0", feedPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Serving feed quotes: 3 topic(s), session run-test")
	assert.Contains(t, out, "refresh 1:")
	assert.Contains(t, out, "Value1")
	assert.Contains(t, out, "Stopped after")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, "run-test")
	require.NoError(t, err)
	assert.True(t, sess.Ended, "session should be ended after shutdown")

	state, err := st.GetSessionState(ctx, "run-test")
	require.NoError(t, err)
	assert.Equal(t, []int32{101, 102, 103}, state.Subscribed)
	assert.NotEmpty(t, state.Batches)
	assert.Empty(t, state.Mismatches)
}

func TestRun_JSON(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)

	out, err := execute(t, newRunCommand(newTestRun("json")),
		"--duration", "400ms", "--throttle", "0", feedPath)
	require.NoError(t, err)

	type refresh struct {
		Refresh   int             `json:"refresh"`
		SessionID string          `json:"session_id"`
		Count     int32           `json:"count"`
		Table     json.RawMessage `json:"table"`
	}

	var refreshes []refresh
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var r refresh
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), "line %q", scanner.Text())
		refreshes = append(refreshes, r)
	}
	require.NotEmpty(t, refreshes)

	total := int32(0)
	for i, r := range refreshes {
		assert.Equal(t, i+1, r.Refresh)
		assert.Equal(t, "run-test", r.SessionID)
		assert.Positive(t, r.Count)
		assert.Contains(t, string(r.Table), `"rows"`)
		total += r.Count
	}
	assert.Equal(t, int32(3), total, "each topic is delivered once")
}

func TestRun_TopicSubset(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)

	out, err := execute(t, newRunCommand(newTestRun("text")),
		"--topic", "102", "--duration", "400ms", "--throttle", "0", feedPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Serving feed quotes: 1 topic(s)")
	assert.Contains(t, out, "123.45")
	assert.NotContains(t, out, "Value1")
}

func TestRun_UnknownTopic(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)

	_, err := execute(t, newRunCommand(newTestRun("text")),
		"--topic", "999", "--duration", "100ms", feedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "topic 999 is not declared")
}

func TestRun_InvalidFeed(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "broken.cue", brokenFeed)

	_, err := execute(t, newRunCommand(newTestRun("text")), "--duration", "100ms", feedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid feed")
}

func TestRun_MissingFeed(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, newRunCommand(newTestRun("text")), "--duration", "100ms", "/nonexistent/feed.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load feed")
}

func TestRun_DatabaseFromEnvironment(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "quotes.cue", quotesFeed)
	dbPath := filepath.Join(dir, "env.db")
	t.Setenv("RTD_DB", dbPath)

	_, err := execute(t, newRunCommand(newTestRun("text")),
		"--duration", "200ms", "--throttle", "0", feedPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	sessions, err := st.ReadSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-test", sessions[0].ID)
}

func TestRun_DatabaseFromEnvFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "quotes.cue", quotesFeed)
	dbPath := filepath.Join(dir, "dotenv.db")
	envPath := writeFile(t, dir, "rtd.env", "RTD_DB="+dbPath+"\n")
	t.Cleanup(func() { os.Unsetenv("RTD_DB") })

	_, err := execute(t, newRunCommand(newTestRun("text")),
		"--env-file", envPath, "--duration", "200ms", "--throttle", "0", feedPath)
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "journal should be created at the path from the env file")
}

func TestRun_MissingEnvFile(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)

	_, err := execute(t, newRunCommand(newTestRun("text")),
		"--env-file", "/nonexistent/.env", "--duration", "100ms", feedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRun_InvalidConfig(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)
	t.Setenv("RTD_LOG_LEVEL", "loud")

	_, err := execute(t, newRunCommand(newTestRun("text")), "--duration", "100ms", feedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestSelectTopics(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)
	spec, errs, err := loadFeed(path)
	require.NoError(t, err)
	require.Empty(t, errs)

	all, err := selectTopics(spec, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := selectTopics(spec, []int32{103, 101})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, int32(103), some[0].Key)
	assert.Equal(t, []string{"IBM"}, some[0].Args)
	assert.Equal(t, int32(101), some[1].Key)

	_, err = selectTopics(spec, []int32{7})
	assert.Error(t, err)
}

const pushStream = `{"key":102,"value":{"kind":"real","value":99.5}}
not json
{"key":999,"value":{"kind":"int","value":1}}

{"key":101,"value":{"kind":"text","value":"Pushed"}}
`

func TestRun_PushFromStdin(t *testing.T) {
	isolateEnv(t)
	feedPath := writeFile(t, t.TempDir(), "quotes.cue", quotesFeed)

	cmd := newRunCommand(newTestRun("text"))
	cmd.SetIn(strings.NewReader(pushStream))
	out, err := execute(t, cmd, "--push", "-", "--duration", "400ms", "--throttle", "0", feedPath)
	require.NoError(t, err)

	assert.Contains(t, out, "99.5")
	assert.Contains(t, out, "Pushed")
	assert.NotContains(t, out, "Value1", "pushed values replace the feed's generators")
}

func TestRun_PushFromFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "quotes.cue", quotesFeed)
	streamPath := writeFile(t, dir, "updates.ndjson", pushStream)
	dbPath := filepath.Join(dir, "rtd.db")

	out, err := execute(t, newRunCommand(newTestRun("text")),
		"--db", dbPath, "--push", streamPath, "--duration", "400ms", "--throttle", "0", feedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Pushed")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	state, err := st.GetSessionState(context.Background(), "run-test")
	require.NoError(t, err)
	assert.Empty(t, state.Mismatches)
	assert.Equal(t, ir.Text("Pushed"), state.Latest[101])
	assert.Equal(t, ir.Real(99.5), state.Latest[102])
}

func TestRun_PushMissingFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "quotes.cue", quotesFeed)

	_, err := execute(t, newRunCommand(newTestRun("text")),
		"--push", filepath.Join(dir, "missing.ndjson"), "--duration", "100ms", feedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open push stream")
}
