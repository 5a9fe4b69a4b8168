package configuration

import (
	"context"
	"os"
	"path/filepath"

	operations "github.com/goliatone/go-operations"
)

// DownloadPrefix names the files a manager downloads into its tmp dir.
const DownloadPrefix = "configuration.download."

const defaultInboxSize = 10

// Manager advances configuration update operations: it schedules them,
// downloads the new content in the background and installs it over the
// target file.
type Manager struct {
	logger      operations.Logger
	downloader  Downloader
	installer   Installer
	transitions *Transitions
	tmpDir      string
	inboxSize   int

	inbox   chan operations.Message
	results chan downloadResult
	pending map[string]struct{}
}

type downloadResult struct {
	state Downloading
	err   error
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		installer:   FileInstaller{},
		transitions: NewTransitions(),
		tmpDir:      os.TempDir(),
		inboxSize:   defaultInboxSize,
		pending:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = operations.NormalizeLogger(m.logger)
	if m.downloader == nil {
		m.downloader = NewHTTPDownloader(m.logger)
	}
	m.inbox = make(chan operations.Message, m.inboxSize)
	m.results = make(chan downloadResult)
	return m
}

// Inbox receives the snapshots the dispatcher forwards to this manager.
func (m *Manager) Inbox() chan<- operations.Message {
	return m.inbox
}

// Transitions exposes the lifecycle guard, eg. for pruning finished instances.
func (m *Manager) Transitions() *Transitions {
	return m.transitions
}

// TmpDir is where downloads land by default.
func (m *Manager) TmpDir() string {
	return m.tmpDir
}

// Run handles snapshots until ctx is done, sending every new state to outbox.
func (m *Manager) Run(ctx context.Context, outbox chan<- operations.Message) error {
	m.logger.Info("configuration manager started, downloads in %s", m.tmpDir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.inbox:
			m.handle(ctx, msg, outbox)
		case res := <-m.results:
			m.finishDownload(ctx, res, outbox)
		}
	}
}

func (m *Manager) handle(ctx context.Context, msg operations.Message, outbox chan<- operations.Message) {
	logger := operations.WithLoggerFields(m.logger.WithContext(ctx), map[string]any{
		"key":    msg.Key.String(),
		"status": msg.Status,
	})

	state, invalid := FromMessage(msg)
	if state == nil {
		logger.Warn("ignoring configuration snapshot: %v", invalid)
		return
	}
	if err := m.transitions.Accept(ctx, state); err != nil {
		logger.Warn("ignoring configuration snapshot: %v", err)
		return
	}
	if invalid != nil {
		m.emit(ctx, outbox, Fail(state, operations.ErrorMessage(invalid)))
		return
	}

	switch s := state.(type) {
	case Init:
		m.emit(ctx, outbox, Scheduled{s.Header})
	case Scheduled:
		next := Downloading{Header: s.Header, Path: m.downloadPath(s.Header)}
		if m.emit(ctx, outbox, next) {
			m.startDownload(ctx, next)
		}
	case Downloading:
		if _, ok := m.pending[ID(s)]; !ok {
			logger.Info("resuming download from %s", s.Request.SrcURL)
			m.startDownload(ctx, s)
		}
	case Downloaded:
		m.emit(ctx, outbox, Installing(s))
	case Installing:
		if err := m.installer.Install(s.Path, s.Request.Target); err != nil {
			m.emit(ctx, outbox, Fail(s, operations.ErrorMessage(err)))
			return
		}
		logger.Info("installed %s", s.Request.Target)
		m.emit(ctx, outbox, Successful{s.Header})
	case Successful, Failed:
		delete(m.pending, ID(s))
	}
}

func (m *Manager) startDownload(ctx context.Context, s Downloading) {
	id := ID(s)
	m.pending[id] = struct{}{}
	fields := map[string]any{"key": Key(s).String(), "src_url": s.Request.SrcURL}
	recoverPanic := operations.MakePanicHandler(operations.LogPanics(m.logger))

	go func() {
		var err error = operations.NewError(operations.ErrDownloadFailed, "Download from "+s.Request.SrcURL+" aborted", nil, fields)
		defer func() {
			select {
			case m.results <- downloadResult{state: s, err: err}:
			case <-ctx.Done():
			}
		}()
		defer recoverPanic("download", fields)

		err = m.downloader.Download(ctx, s.Request.SrcURL, s.Path, s.Request.SHA256)
	}()
}

func (m *Manager) finishDownload(ctx context.Context, res downloadResult, outbox chan<- operations.Message) {
	delete(m.pending, ID(res.state))
	if res.err != nil {
		m.emit(ctx, outbox, Fail(res.state, operations.ErrorMessage(res.err)))
		return
	}
	m.emit(ctx, outbox, Downloaded(res.state))
}

// emit records the transition and hands the new snapshot to the
// dispatcher. Illegal transitions are logged and dropped.
func (m *Manager) emit(ctx context.Context, outbox chan<- operations.Message, s State) bool {
	if err := m.transitions.Advance(ctx, s); err != nil {
		operations.WithLoggerFields(m.logger.WithContext(ctx), map[string]any{
			"key":    Key(s).String(),
			"status": s.Status(),
		}).Warn("dropping configuration transition: %v", err)
		return false
	}
	select {
	case outbox <- ToMessage(s):
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) downloadPath(h Header) string {
	if h.Request.TmpPath != "" {
		return h.Request.TmpPath
	}
	return filepath.Join(m.tmpDir, DownloadPrefix+h.Key.Instance)
}
