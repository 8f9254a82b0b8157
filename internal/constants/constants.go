package constants

import "time"

const (
	DefaultSweepInterval = 10 * time.Minute
	MinSweepInterval     = 30 * time.Second
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	SweepTimeout       = 2 * time.Minute
	NotifyTimeout      = 10 * time.Second
)

// tier_records is rewritten whole on every save, so the file gets a single
// writer and full syncs.
const (
	SQLiteJournalMode = "WAL"
	SQLiteSynchronous = "FULL"
	SQLiteBusyTimeout = 5 * time.Second
	SQLiteTempStore   = "MEMORY"
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// discord caps a member page at 1000 entries and an embed field at 1024 characters
	MemberPageSize     = 1000
	EmbedFieldMaxChars = 1024
	EmbedMaxFields     = 25
)
