// Package oracle pushes accepted bests back to the chat platform so the
// in-chat game message shows the same leaderboard the bot serves.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// MessageRef locates the game message whose scoreboard should be updated.
// Either a chat message (ChatID and MessageID) or an inline message
// (InlineID) is set, never both.
type MessageRef struct {
	ChatID    int64
	MessageID int
	InlineID  string
}

// Valid reports whether the ref points at anything.
func (r MessageRef) Valid() bool {
	return (r.ChatID != 0 && r.MessageID != 0) || r.InlineID != ""
}

// HighScore is one row returned by the platform's score query.
type HighScore struct {
	Position int    `json:"position"`
	Score    int64  `json:"score"`
	UserID   int64  `json:"-"`
	Name     string `json:"-"`
}

// Oracle is the platform-side score surface the forwarder talks to.
type Oracle interface {
	SetScore(ctx context.Context, ref MessageRef, playerID, score int64, force bool) error
	HighScores(ctx context.Context, ref MessageRef, playerID int64) ([]HighScore, error)
}

// rawCaller is the slice of the bot API the oracle needs.
type rawCaller interface {
	Raw(method string, payload interface{}) ([]byte, error)
}

// TelegramOracle forwards scores through the Bot API game methods.
type TelegramOracle struct {
	bot rawCaller
}

// NewTelegramOracle creates an oracle backed by a live bot connection.
func NewTelegramOracle(bot rawCaller) *TelegramOracle {
	return &TelegramOracle{bot: bot}
}

// NewTelegramOracleFromBot adapts a telebot instance.
func NewTelegramOracleFromBot(b *tele.Bot) *TelegramOracle {
	return &TelegramOracle{bot: b}
}

func (o *TelegramOracle) refPayload(ref MessageRef) map[string]interface{} {
	p := make(map[string]interface{})
	if ref.InlineID != "" {
		p["inline_message_id"] = ref.InlineID
	} else {
		p["chat_id"] = ref.ChatID
		p["message_id"] = ref.MessageID
	}
	return p
}

// SetScore publishes a best through setGameScore. force also lets the
// platform accept a score lower than its recorded one, mirroring a
// manual override on our side.
func (o *TelegramOracle) SetScore(_ context.Context, ref MessageRef, playerID, score int64, force bool) error {
	if !ref.Valid() {
		return fmt.Errorf("no game message to update")
	}

	payload := o.refPayload(ref)
	payload["user_id"] = playerID
	payload["score"] = score
	if force {
		payload["force"] = true
	}

	if _, err := o.bot.Raw("setGameScore", payload); err != nil {
		return fmt.Errorf("setGameScore failed: %w", err)
	}
	return nil
}

// HighScores queries the platform's own scoreboard around a player.
func (o *TelegramOracle) HighScores(_ context.Context, ref MessageRef, playerID int64) ([]HighScore, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("no game message to query")
	}

	payload := o.refPayload(ref)
	payload["user_id"] = playerID

	data, err := o.bot.Raw("getGameHighScores", payload)
	if err != nil {
		return nil, fmt.Errorf("getGameHighScores failed: %w", err)
	}

	var resp struct {
		Result []struct {
			Position int   `json:"position"`
			Score    int64 `json:"score"`
			User     struct {
				ID        int64  `json:"id"`
				FirstName string `json:"first_name"`
				Username  string `json:"username"`
			} `json:"user"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode high scores: %w", err)
	}

	scores := make([]HighScore, len(resp.Result))
	for i, r := range resp.Result {
		name := r.User.Username
		if name == "" {
			name = r.User.FirstName
		}
		scores[i] = HighScore{
			Position: r.Position,
			Score:    r.Score,
			UserID:   r.User.ID,
			Name:     name,
		}
	}
	return scores, nil
}
