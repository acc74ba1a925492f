// Package audit is a best-effort, asynchronous lifecycle event log backed by
// SQLite. It exists purely for after-the-fact inspection of who joined,
// left, and which rooms came and went; nothing in the relay's correctness
// depends on it, so every write is fire-and-forget.
package audit

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Event is one lifecycle occurrence worth recording.
type Event string

const (
	EventSessionRegistered   Event = "session_registered"
	EventSessionUnregistered Event = "session_unregistered"
	EventSessionJoined       Event = "session_joined"
	EventSessionLeft         Event = "session_left"
	EventRoomCreated         Event = "room_created"
	EventRoomDestroyed       Event = "room_destroyed"
)

type entry struct {
	at     time.Time
	event  Event
	room   string
	remote string
}

// Log is an async sink over a single SQLite file. A nil *Log is valid and
// every method on it is a no-op, so callers never need to branch on whether
// auditing is enabled.
type Log struct {
	log    *zerolog.Logger
	db     *sql.DB
	queue  chan entry
	done   chan struct{}
	closed sync.Once
}

// Open creates (or reuses) the SQLite file at path and starts the background
// writer. Callers must call Close during shutdown to drain the queue.
func Open(path string, log *zerolog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	event TEXT NOT NULL,
	room TEXT NOT NULL,
	remote TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	l := &Log{
		log:   log,
		db:    db,
		queue: make(chan entry, 256),
		done:  make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Record enqueues an event for asynchronous persistence. If the queue is
// full the event is dropped and logged, rather than blocking the caller —
// a full relay hot path must never stall on audit I/O.
func (l *Log) Record(event Event, room, remote string) {
	if l == nil {
		return
	}
	e := entry{at: time.Now(), event: event, room: room, remote: remote}
	select {
	case l.queue <- e:
	default:
		l.log.Warn().Str("event", string(event)).Msg("audit queue full, dropping event")
	}
}

// Close stops the background writer once the queue drains.
func (l *Log) Close() {
	if l == nil {
		return
	}
	l.closed.Do(func() {
		close(l.queue)
	})
	<-l.done
}

func (l *Log) run() {
	defer close(l.done)
	stmt, err := l.db.Prepare(`INSERT INTO lifecycle_events (at, event, room, remote) VALUES (?, ?, ?, ?)`)
	if err != nil {
		l.log.Error().Err(err).Msg("audit: failed to prepare insert statement")
		for range l.queue {
		}
		l.db.Close()
		return
	}
	defer stmt.Close()
	defer l.db.Close()

	for e := range l.queue {
		if _, err := stmt.Exec(e.at.UnixNano(), string(e.event), e.room, e.remote); err != nil {
			l.log.Error().Err(err).Str("event", string(e.event)).Msg("audit: failed to persist event")
		}
	}
}
