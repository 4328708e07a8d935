package inbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysaidmin/sysaidmin/internal/allowlist"
	"github.com/sysaidmin/sysaidmin/internal/executor"
	"github.com/sysaidmin/sysaidmin/internal/logging"
	"github.com/sysaidmin/sysaidmin/internal/model"
	"github.com/sysaidmin/sysaidmin/internal/observability"
	"github.com/sysaidmin/sysaidmin/internal/orchestrator"
	"github.com/sysaidmin/sysaidmin/internal/session"
)

func newTestInbox(t *testing.T) (*Inbox, string, string) {
	t.Helper()

	rules, err := allowlist.Compile(model.AllowlistConfig{
		CommandPatterns: []string{`^echo`},
		MaxEditSizeKB:   64,
	})
	require.NoError(t, err)

	sessionDir := t.TempDir()
	rec, err := session.NewRecorder(sessionDir)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	orch := orchestrator.New(orchestrator.Options{
		Rules:    rules,
		Executor: executor.New("/bin/sh", 5*time.Second),
		Recorder: rec,
		Metrics:  observability.NewMetrics(prometheus.NewRegistry(), "sysaidmin"),
		Logger:   logging.New(io.Discard, "orchestrator", logging.LevelError),
		Workers:  1,
	})

	inboxDir := t.TempDir()
	ib := New(inboxDir, "/bin/sh", orch, logging.New(io.Discard, "inbox", logging.LevelError))
	ib.SetRescanInterval(50 * time.Millisecond)
	return ib, inboxDir, sessionDir
}

func waitForSuffix(t *testing.T, path, suffix string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path + suffix); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s%s", path, suffix)
}

func TestInbox_ProcessesDroppedPlan(t *testing.T) {
	ib, inboxDir, sessionDir := newTestInbox(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ib.Run(ctx)

	path := filepath.Join(inboxDir, "plan-1.json")
	doc := `{"request_id":"req-inbox","tasks":[{"type":"command","command":"echo from-inbox"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	waitForSuffix(t, path, doneSuffix)

	// Original name must be gone, snapshot recorded.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(sessionDir)
	require.NoError(t, err)
	var foundSnapshot bool
	for _, e := range entries {
		if e.Name() != "events.jsonl" {
			foundSnapshot = true
			assert.Contains(t, e.Name(), "req-inbox")
		}
	}
	assert.True(t, foundSnapshot, "no snapshot written for completed plan")
}

func TestInbox_RejectsMalformedPlan(t *testing.T) {
	ib, inboxDir, sessionDir := newTestInbox(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ib.Run(ctx)

	path := filepath.Join(inboxDir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tasks":[{"type":"reboot"}]}`), 0644))

	waitForSuffix(t, path, rejectedSuffix)

	// A plan that never became valid leaves no session artifacts.
	entries, err := os.ReadDir(sessionDir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() == "events.jsonl" {
			info, err := e.Info()
			require.NoError(t, err)
			assert.Zero(t, info.Size(), "events were logged for a rejected plan")
		} else {
			t.Errorf("unexpected session artifact %s", e.Name())
		}
	}
}

func TestInbox_RescanPicksUpPreexistingFiles(t *testing.T) {
	ib, inboxDir, _ := newTestInbox(t)

	// File dropped before the watcher starts.
	path := filepath.Join(inboxDir, "early.json")
	doc := `{"tasks":[{"type":"command","command":"echo early"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ib.Run(ctx)

	waitForSuffix(t, path, doneSuffix)
}
