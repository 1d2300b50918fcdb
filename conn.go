package mymcp

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// connManager owns the lifecycle of the single database session: lazily
// created on first use, reused across calls, dropped after a connectivity
// failure so the next call reconnects. At most one session is open at a time.
type connManager struct {
	db     *sql.DB
	logger zerolog.Logger

	mu    sync.Mutex
	sess  *sql.Conn
	opens atomic.Int64
}

func newConnManager(db *sql.DB, logger zerolog.Logger) *connManager {
	return &connManager{db: db, logger: logger}
}

// get returns the live session, opening one if none exists or the previous
// one was marked broken. Opening blocks on the network handshake.
func (m *connManager) get(ctx context.Context) (*sql.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil {
		return m.sess, nil
	}
	if m.db == nil {
		return nil, errors.New("connection manager is closed")
	}

	sess, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	m.sess = sess
	m.opens.Add(1)
	m.logger.Debug().Int64("session_opens", m.opens.Load()).Msg("database session opened")
	return sess, nil
}

// markBroken drops the held session. Safe to call when no session is open.
func (m *connManager) markBroken() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return
	}
	_ = m.sess.Close()
	m.sess = nil
	m.logger.Warn().Msg("database session marked broken, will reconnect on next use")
}

// Opens returns how many sessions have been opened since startup.
func (m *connManager) Opens() int64 {
	return m.opens.Load()
}

// close releases the session and the underlying handle. Idempotent.
func (m *connManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil {
		_ = m.sess.Close()
		m.sess = nil
	}
	if m.db != nil {
		_ = m.db.Close()
		m.db = nil
	}
}
