package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/setup/telemetry/logger"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName identifies this program in traces.
const ServiceName = "warden"

// Manager handles session log directories, logger construction and trace export.
type Manager struct {
	instanceID    string
	logDir        string
	sessionDir    string
	level         string
	maxLogsToKeep int
	maxLogLines   int
	tracing       bool
	files         []*logger.Rotator
}

// NewManager creates a new Manager instance.
func NewManager(logDir string, debugCfg *config.Debug) *Manager {
	return &Manager{
		instanceID:    uuid.New().String(),
		logDir:        logDir,
		level:         debugCfg.LogLevel,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
	}
}

// InstanceID returns the unique identifier of this program run.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// SessionDir returns the directory holding this run's log files.
func (m *Manager) SessionDir() string {
	return m.sessionDir
}

// EnableTracing exports spans to Uptrace. It is a no-op without a DSN.
func (m *Manager) EnableTracing(dsn, version string) {
	if dsn == "" {
		return
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(dsn),
		uptrace.WithServiceName(ServiceName),
		uptrace.WithServiceVersion(version),
	)

	m.tracing = true
}

// Logger creates a new session directory and returns a logger writing to it and to stderr.
func (m *Manager) Logger() (*zap.Logger, error) {
	if err := m.setupLogDirectories(); err != nil {
		return nil, err
	}

	level, err := zapcore.ParseLevel(m.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	rotator, err := logger.Open(filepath.Join(m.sessionDir, "main.log"), m.maxLogLines)
	if err != nil {
		return nil, err
	}

	m.files = append(m.files, rotator)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), level),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
		NewCore(level),
	)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("instance", m.instanceID[:8])),
	), nil
}

// Stop flushes trace export and closes log files.
func (m *Manager) Stop(ctx context.Context) {
	if m.tracing {
		_ = uptrace.Shutdown(ctx)
	}

	for _, file := range m.files {
		_ = file.Sync()
		_ = file.Close()
	}
}

// setupLogDirectories ensures the base directory exists, rotates old sessions
// and creates a directory for this session.
func (m *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(m.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := m.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	m.sessionDir = filepath.Join(m.logDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(m.sessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// rotateLogSessions removes the oldest sessions so that, together with the
// session about to be created, at most maxLogsToKeep remain.
func (m *Manager) rotateLogSessions() error {
	entries, err := os.ReadDir(m.logDir)
	if err != nil {
		return err
	}

	type session struct {
		path    string
		modTime time.Time
	}

	sessions := make([]session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		sessions = append(sessions, session{path: filepath.Join(m.logDir, entry.Name()), modTime: info.ModTime()})
	}

	keep := max(m.maxLogsToKeep-1, 0)
	if len(sessions) <= keep {
		return nil
	}

	slices.SortFunc(sessions, func(a, b session) int {
		return a.modTime.Compare(b.modTime)
	})

	for _, s := range sessions[:len(sessions)-keep] {
		if err := os.RemoveAll(s.path); err != nil {
			return err
		}
	}

	return nil
}
