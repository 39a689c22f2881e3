// Package ingest normalizes raw score submissions from every entry path
// into validated reports. Malformed input is rejected here so the
// reconciliation engine only ever sees well-formed claims.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coindash-bot/internal/model"
)

// Score bounds shared by every ingestion path. Wide enough for any real
// run of the game, tight enough to reject garbage and overflow attempts.
const (
	MinScore int64 = -1_000_000_000
	MaxScore int64 = 1_000_000_000
)

// ErrMalformedReport marks input that cannot become a valid report.
var ErrMalformedReport = errors.New("malformed score report")

// NewReport validates raw submission fields and builds a ScoreReport.
// An empty displayName is allowed and means the submitter did not carry
// one; reconciliation resolves the name to persist.
func NewReport(contextID string, playerID int64, displayName string, score int64, source model.SourceKind) (*model.ScoreReport, error) {
	if contextID == "" {
		return nil, fmt.Errorf("%w: missing context id", ErrMalformedReport)
	}
	if playerID == 0 {
		return nil, fmt.Errorf("%w: missing player id", ErrMalformedReport)
	}
	if score < MinScore || score > MaxScore {
		return nil, fmt.Errorf("%w: score %d out of range", ErrMalformedReport, score)
	}

	return &model.ScoreReport{
		ReportID:    uuid.New().String(),
		ContextID:   contextID,
		PlayerID:    playerID,
		DisplayName: strings.TrimSpace(displayName),
		Score:       score,
		Source:      source,
		ReceivedAt:  time.Now(),
	}, nil
}

// embeddedPayload mirrors the JSON the game page posts through the chat
// client. Field spellings vary between game builds, so both casings of
// the user id are accepted and the score may arrive as a number or a
// numeric string.
type embeddedPayload struct {
	Action      string      `json:"action"`
	Score       json.Number `json:"score"`
	UserID      int64       `json:"user_id"`
	UserIDCamel int64       `json:"userId"`
	Username    string      `json:"username"`
}

// ParseEmbeddedPayload decodes a web-app data payload into a report.
// Only set-score actions are meaningful; anything else is malformed.
func ParseEmbeddedPayload(contextID string, senderID int64, senderName string, data []byte) (*model.ScoreReport, error) {
	var p embeddedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	switch p.Action {
	case "setGameScore", "set_score":
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedReport, p.Action)
	}

	score, err := p.Score.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: non-integer score %q", ErrMalformedReport, p.Score)
	}

	// The payload may carry its own user id; the message sender wins
	// when both are present so a payload cannot impersonate another player.
	playerID := senderID
	if playerID == 0 {
		playerID = p.UserID
	}
	if playerID == 0 {
		playerID = p.UserIDCamel
	}

	name := senderName
	if name == "" {
		name = p.Username
	}

	return NewReport(contextID, playerID, name, score, model.SourceEmbeddedApp)
}
