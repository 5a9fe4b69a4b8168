package configuration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operations "github.com/goliatone/go-operations"
)

type managerHarness struct {
	manager *Manager
	outbox  chan operations.Message
}

func startManager(t *testing.T, opts ...Option) *managerHarness {
	t.Helper()
	h := &managerHarness{
		manager: NewManager(opts...),
		outbox:  make(chan operations.Message, 16),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.manager.Run(ctx, h.outbox) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return h
}

func (h *managerHarness) next(t *testing.T) operations.Message {
	t.Helper()
	select {
	case msg := <-h.outbox:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot emitted")
		return operations.Message{}
	}
}

// drive feeds msg and echoes every emitted snapshot back, the way the
// dispatcher does for tedge owned states, until a terminal one appears.
func (h *managerHarness) drive(t *testing.T, msg operations.Message) []operations.Message {
	t.Helper()
	var seen []operations.Message
	h.manager.Inbox() <- msg
	for {
		out := h.next(t)
		seen = append(seen, out)
		if out.Status == StatusSuccessful || out.Status == StatusFailed {
			return seen
		}
		h.manager.Inbox() <- out
	}
}

func statuses(msgs []operations.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Status)
	}
	return out
}

func writingDownloader(content string) Downloader {
	return DownloaderFunc(func(_ context.Context, _, dst, _ string) error {
		return os.WriteFile(dst, []byte(content), 0o600)
	})
}

func TestManagerInstallsConfiguration(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.conf")
	h := startManager(t, WithTmpDir(dir), WithDownloader(writingDownloader("new content")))

	req := operations.NewMessage(testKey, StatusInit).
		Set("target", target).
		Set("src_url", "http://example.test/app.conf")
	seen := h.drive(t, req)

	assert.Equal(t, []string{
		StatusScheduled, StatusDownloading, StatusDownloaded, StatusInstalling, StatusSuccessful,
	}, statuses(seen))

	path, _ := seen[1].String("path")
	assert.Equal(t, filepath.Join(dir, DownloadPrefix+"42"), path)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	src, _ := seen[4].String("src_url")
	assert.Equal(t, "http://example.test/app.conf", src)
}

func TestManagerFailsOnDownloadError(t *testing.T) {
	h := startManager(t, WithTmpDir(t.TempDir()), WithDownloader(DownloaderFunc(func(context.Context, string, string, string) error {
		return operations.NewError(operations.ErrDownloadFailed, "Download from x failed: refused", errors.New("refused"), nil)
	})))

	seen := h.drive(t, request(StatusInit))
	assert.Equal(t, []string{StatusScheduled, StatusDownloading, StatusFailed}, statuses(seen))

	reason, _ := seen[2].String("reason")
	assert.Equal(t, "Download from x failed: refused", reason)
}

func TestManagerFailsIncompleteRequests(t *testing.T) {
	h := startManager(t, WithTmpDir(t.TempDir()))

	seen := h.drive(t, operations.NewMessage(testKey, StatusInit).Set("target", "/etc/app.conf"))
	require.Len(t, seen, 1)
	reason, _ := seen[0].String("reason")
	assert.Equal(t, "Invalid configuration request: missing src_url", reason)
}

func TestManagerFailsOnInstallError(t *testing.T) {
	h := startManager(t,
		WithTmpDir(t.TempDir()),
		WithDownloader(writingDownloader("x")),
		WithInstaller(InstallerFunc(func(string, string) error {
			return operations.NewError(operations.ErrInstallFailed, "Install of /etc/app.conf failed: read-only", nil, nil)
		})),
	)

	seen := h.drive(t, request(StatusInit))
	assert.Equal(t, StatusFailed, seen[len(seen)-1].Status)
	reason, _ := seen[len(seen)-1].String("reason")
	assert.Equal(t, "Install of /etc/app.conf failed: read-only", reason)
}

func TestManagerResumesRetainedDownload(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan string, 2)
	h := startManager(t, WithTmpDir(dir), WithDownloader(DownloaderFunc(func(_ context.Context, src, dst, _ string) error {
		calls <- dst
		return os.WriteFile(dst, []byte("x"), 0o600)
	})))

	path := filepath.Join(dir, "resumed")
	h.manager.Inbox() <- request(StatusDownloading).Set("path", path)

	out := h.next(t)
	assert.Equal(t, StatusDownloaded, out.Status)
	got, _ := out.String("path")
	assert.Equal(t, path, got)
	assert.Equal(t, path, <-calls)
}

func TestManagerHonoursRequestTmpPath(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "custom.download")
	h := startManager(t, WithTmpDir(dir), WithDownloader(writingDownloader("x")))

	seen := h.drive(t, request(StatusInit).
		Set("tmp_path", tmp).
		Set("target", filepath.Join(dir, "app.conf")))
	path, _ := seen[1].String("path")
	assert.Equal(t, tmp, path)
	assert.Equal(t, StatusSuccessful, seen[len(seen)-1].Status)
}

func TestManagerIgnoresStaleEchoes(t *testing.T) {
	dir := t.TempDir()
	h := startManager(t, WithTmpDir(dir), WithDownloader(writingDownloader("x")))

	seen := h.drive(t, request(StatusInit).Set("target", filepath.Join(dir, "app.conf")))
	require.Equal(t, StatusSuccessful, seen[len(seen)-1].Status)

	// a replayed downloading snapshot for the finished instance
	h.manager.Inbox() <- seen[1]
	select {
	case msg := <-h.outbox:
		t.Fatalf("unexpected snapshot %s", msg.Status)
	case <-time.After(100 * time.Millisecond):
	}
}

func downloadingState(t *testing.T, path string) Downloading {
	t.Helper()
	s, err := FromMessage(request(StatusDownloading).Set("path", path))
	require.NoError(t, err)
	d, ok := s.(Downloading)
	require.True(t, ok)
	return d
}

func TestStartDownloadReportsSuccessWithoutError(t *testing.T) {
	m := NewManager(WithTmpDir(t.TempDir()), WithDownloader(writingDownloader("x")))
	s := downloadingState(t, filepath.Join(t.TempDir(), "ok"))

	m.startDownload(context.Background(), s)
	res := <-m.results
	assert.NoError(t, res.err)
	assert.Equal(t, s, res.state)

	outbox := make(chan operations.Message, 1)
	require.NoError(t, m.transitions.Accept(context.Background(), s))
	m.finishDownload(context.Background(), res, outbox)
	assert.Equal(t, StatusDownloaded, (<-outbox).Status)
}

func TestStartDownloadReportsPanicsAsFailures(t *testing.T) {
	m := NewManager(WithTmpDir(t.TempDir()), WithDownloader(DownloaderFunc(func(context.Context, string, string, string) error {
		panic("boom")
	})))
	s := downloadingState(t, filepath.Join(t.TempDir(), "panic"))

	m.startDownload(context.Background(), s)
	res := <-m.results
	require.Error(t, res.err)
	assert.True(t, operations.HasCode(res.err, operations.ErrCodeDownloadFailed))
	assert.Contains(t, operations.ErrorMessage(res.err), "aborted")
}
