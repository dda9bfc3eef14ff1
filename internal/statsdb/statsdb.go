// Package statsdb persists periodic engine-session and statistics records
// to ClickHouse. A session row is written once, at Open; statistics rows
// are written via AsyncInsert as they arrive, so a slow ClickHouse server
// never blocks the caller beyond handing the row to the driver's internal
// queue.
package statsdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// SessionRecord is written once per engine session, at Open.
type SessionRecord struct {
	InstanceID string
	Hostname   string
	LocalIP    string
	LocalPort  uint16
	Start      time.Time
}

// StatisticsRecord is one periodic snapshot, shaped to mirror the root
// package's Statistics struct without importing it.
type StatisticsRecord struct {
	InstanceID            string
	Time                  time.Time
	PacketsReceived       uint64
	PacketsSent           uint64
	AvgResponseTimeMs     float64
	MinResponseTimeMs     float64
	MaxResponseTimeMs     float64
	LateResponses         uint64
	ConnectionLostCount   uint64
	IsConnected           bool
}

const databaseName = "rsihost"

// Sink owns a ClickHouse connection and a fan-in goroutine that serializes
// AsyncInsert calls through a single connection and a single handler
// goroutine.
type Sink struct {
	conn      clickhouse.Conn
	err       error
	session   SessionRecord
	statsCh   chan StatisticsRecord
	connected atomic.Bool
	done      chan struct{}
	mu        sync.Mutex
}

// Open connects to dsn, writes the session record, and starts the fan-in
// goroutine. If parsing the DSN, opening the connection, or the ping fails,
// the returned error is non-nil and the caller should treat the Telemetry
// Sink as disabled for this session. A failed session insert is not
// returned: the Sink is still returned and Connected reports false.
func Open(dsn string, session SessionRecord) (*Sink, error) {
	opt, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("statsdb: parse dsn: %w", err)
	}
	if opt.Auth.Database == "" {
		opt.Auth.Database = databaseName
	}
	conn, err := clickhouse.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("statsdb: open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("statsdb: ping: %w", err)
	}

	s := &Sink{
		conn:    conn,
		session: session,
		statsCh: make(chan StatisticsRecord, 64),
		done:    make(chan struct{}),
	}
	s.connected.Store(true)
	if err := s.insertSession(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
	go s.run()
	return s, nil
}

func (s *Sink) insertSession() error {
	const nowait = false
	return s.conn.AsyncInsert(context.Background(),
		`INSERT INTO engine_session VALUES (?, ?, ?, ?, ?)`, nowait,
		s.session.InstanceID, s.session.Hostname, s.session.LocalIP,
		s.session.LocalPort, s.session.Start.Format("2006-01-02 15:04:05.000000"))
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.statsCh {
		s.insertStatistics(rec)
	}
}

func (s *Sink) insertStatistics(rec StatisticsRecord) {
	const nowait = false
	err := s.conn.AsyncInsert(context.Background(),
		`INSERT INTO engine_stats VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		rec.InstanceID, rec.Time.Format("2006-01-02 15:04:05.000000"),
		rec.PacketsReceived, rec.PacketsSent, rec.AvgResponseTimeMs,
		rec.MinResponseTimeMs, rec.MaxResponseTimeMs, rec.LateResponses,
		rec.ConnectionLostCount, rec.IsConnected,
	)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Record enqueues a statistics snapshot. Non-blocking unless the 64-entry
// buffer is full, in which case the record is dropped rather than stalling
// the caller; a Telemetry Sink backpressured that far behind is already
// failing to keep up, and dropping a stats row is harmless.
func (s *Sink) Record(rec StatisticsRecord) {
	if !s.connected.Load() {
		return
	}
	select {
	case s.statsCh <- rec:
	default:
	}
}

// Connected reports whether the most recent operation succeeded.
func (s *Sink) Connected() bool {
	if !s.connected.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err == nil
}

// Close stops the fan-in goroutine and closes the connection.
func (s *Sink) Close() error {
	if !s.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(s.statsCh)
	<-s.done
	return s.conn.Close()
}
