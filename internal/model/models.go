// Package model defines the data models for the game score bot.
package model

import "time"

// SourceKind identifies the ingestion path a score report arrived through.
// The reconciliation rule never branches on it; it exists for audit logging.
type SourceKind string

const (
	SourceEmbeddedApp    SourceKind = "embedded_app"    // web-app payload attached to a chat message
	SourceNativeCallback SourceKind = "native_callback" // Telegram game callback carrying a score
	SourceManualOverride SourceKind = "manual_override" // /setscore and /forcescore commands
	SourceHTTPAPI        SourceKind = "http_api"        // POST /score
	SourceStream         SourceKind = "stream"          // Kafka score events
)

// PlayerRecord is a player's recorded best within one ranking context.
// Unique per (ContextID, PlayerID); BestScore never decreases as the result
// of an accepted non-forced report.
type PlayerRecord struct {
	ContextID   string    `db:"context_id" json:"context_id"`
	PlayerID    int64     `db:"player_id" json:"player_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	BestScore   int64     `db:"best_score" json:"best_score"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ScoreReport is a normalized, validated claim that a player achieved a
// score. It is a candidate, not a fact: only reconciliation turns it into
// a PlayerRecord. Reports are transient and never persisted.
type ScoreReport struct {
	ReportID    string
	ContextID   string
	PlayerID    int64
	DisplayName string
	Score       int64
	Source      SourceKind
	// Force bypasses the improvement rule; only the manual-override
	// admin path may set it.
	Force      bool
	ReceivedAt time.Time
}

// Outcome is the reconciliation decision for one report.
type Outcome struct {
	Accepted     bool
	Created      bool // no record existed before this report
	PreviousBest int64
	NewBest      int64
}

// LeaderboardEntry is one row of a rendered leaderboard view.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	PlayerID    int64  `json:"player_id"`
	DisplayName string `json:"display_name"`
	Score       int64  `json:"score"`
}
