package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the app-owned chatsync.db.
type DB struct {
	*sql.DB
	changes *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, changes: bus.New()}, nil
}

// Change notification kinds published after a write commits.
const (
	EventChatChanged  = "store.chat_changed"
	EventChatsCleared = "store.chats_cleared"
)

func (db *DB) notifyChats(ids ...string) {
	for _, id := range ids {
		db.changes.Publish(bus.Event{Kind: EventChatChanged, Timestamp: time.Now(), Payload: id})
	}
}

func (db *DB) notifyCleared() {
	db.changes.Publish(bus.Event{Kind: EventChatsCleared, Timestamp: time.Now()})
}
