package configuration

import (
	operations "github.com/goliatone/go-operations"
)

type Option func(*Manager)

func WithLogger(logger operations.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithDownloader(d Downloader) Option {
	return func(m *Manager) {
		m.downloader = d
	}
}

func WithInstaller(i Installer) Option {
	return func(m *Manager) {
		m.installer = i
	}
}

// WithTmpDir sets where downloads land when a request has no tmp_path.
func WithTmpDir(dir string) Option {
	return func(m *Manager) {
		m.tmpDir = dir
	}
}

func WithInboxSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.inboxSize = size
		}
	}
}
