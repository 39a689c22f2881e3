// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"coindash-bot/internal/config"
	"coindash-bot/internal/ingest"
	"coindash-bot/internal/model"
	"coindash-bot/internal/oracle"
	"coindash-bot/internal/store"
)

// Submitter applies a validated score report.
type Submitter interface {
	Reconcile(ctx context.Context, report *model.ScoreReport) (*model.Outcome, error)
}

// Ranker serves leaderboard views.
type Ranker interface {
	TopN(ctx context.Context, contextID string, limit int) ([]model.LeaderboardEntry, error)
	RankOf(ctx context.Context, contextID string, playerID int64) (int, error)
}

// rawCaller is the slice of the bot API sendGame needs.
type rawCaller interface {
	Raw(method string, payload interface{}) ([]byte, error)
}

// scoreCallbackPrefix marks game callbacks that carry a score in their
// data instead of going through the web-app channel.
const scoreCallbackPrefix = "score_"

// GameHandler handles game launch, score callbacks and ranking commands.
type GameHandler struct {
	cfg        *config.Config
	submitter  Submitter
	ranker     Ranker
	refs       *RefRegistry
	raw        rawCaller
	scoreboard oracle.Oracle
}

// NewGameHandler creates a new GameHandler. scoreboard may be nil; when
// set it serves /ranking from Telegram's native board while the local
// store is unavailable.
func NewGameHandler(cfg *config.Config, submitter Submitter, ranker Ranker, refs *RefRegistry, raw rawCaller, scoreboard oracle.Oracle) *GameHandler {
	return &GameHandler{
		cfg:        cfg,
		submitter:  submitter,
		ranker:     ranker,
		refs:       refs,
		raw:        raw,
		scoreboard: scoreboard,
	}
}

// HandleStart handles the /start command by sending the game message.
// Tapping its play button raises the game callback handled below.
func (h *GameHandler) HandleStart(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":         chat.ID,
		"game_short_name": h.cfg.Game.ShortName,
	}
	if _, err := h.raw.Raw("sendGame", payload); err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to send game message")
		return c.Reply("❌ Could not start the game, please try again later")
	}
	return nil
}

// HandleCallback routes game callbacks. A plain game-launch callback is
// answered with the game URL; a score_<n> callback carries a score from
// older game builds that report through callback data.
func (h *GameHandler) HandleCallback(c tele.Context) error {
	cb := c.Callback()
	sender := c.Sender()
	if cb == nil || sender == nil {
		return nil
	}

	contextID := h.contextOf(c)
	h.refs.Record(contextID, sender.ID, callbackRef(cb))

	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
	if strings.HasPrefix(data, scoreCallbackPrefix) {
		return h.handleScoreCallback(c, contextID, data)
	}

	// Launch: hand the game URL back to the client.
	return c.Respond(&tele.CallbackResponse{URL: h.cfg.Game.URL})
}

func (h *GameHandler) handleScoreCallback(c tele.Context, contextID, data string) error {
	sender := c.Sender()

	score, err := strconv.ParseInt(strings.TrimPrefix(data, scoreCallbackPrefix), 10, 64)
	if err != nil {
		log.Warn().Str("data", data).Int64("player_id", sender.ID).Msg("Unparsable score callback")
		return c.Respond(&tele.CallbackResponse{Text: "Invalid score"})
	}

	report, err := ingest.NewReport(contextID, sender.ID, displayName(sender), score, model.SourceNativeCallback)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid score"})
	}

	out, err := h.submitter.Reconcile(context.Background(), report)
	if err != nil {
		log.Error().Err(err).Str("report_id", report.ReportID).Msg("Failed to reconcile callback score")
		return c.Respond(&tele.CallbackResponse{Text: "Could not record score"})
	}

	if out.Accepted {
		return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("🎉 New best: %d", out.NewBest)})
	}
	return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("Best so far: %d", out.NewBest)})
}

// HandleWebAppData handles score payloads posted by the game page
// through the web-app channel.
func (h *GameHandler) HandleWebAppData(c tele.Context) error {
	msg := c.Message()
	sender := c.Sender()
	if msg == nil || msg.WebAppData == nil || sender == nil {
		return nil
	}

	contextID := h.contextOf(c)
	report, err := ingest.ParseEmbeddedPayload(contextID, sender.ID, displayName(sender), []byte(msg.WebAppData.Data))
	if err != nil {
		log.Warn().
			Err(err).
			Int64("player_id", sender.ID).
			Msg("Discarding malformed web-app payload")
		return nil
	}

	out, err := h.submitter.Reconcile(context.Background(), report)
	if err != nil {
		log.Error().Err(err).Str("report_id", report.ReportID).Msg("Failed to reconcile web-app score")
		return c.Reply("❌ Could not record your score, please try again")
	}

	if out.Accepted {
		return c.Reply(fmt.Sprintf("🎉 %s set a new best: %d", displayName(sender), out.NewBest))
	}
	return nil
}

// HandleRanking handles the /ranking command.
func (h *GameHandler) HandleRanking(c tele.Context) error {
	contextID := h.contextOf(c)

	entries, err := h.ranker.TopN(context.Background(), contextID, h.cfg.Ranking.TopLimit)
	if err != nil {
		log.Error().Err(err).Str("context_id", contextID).Msg("Failed to load ranking")
		if msg, ok := h.nativeRanking(c, contextID); ok {
			return c.Reply(msg)
		}
		return c.Reply("❌ Could not load the leaderboard, please try again later")
	}

	if len(entries) == 0 {
		return c.Reply("🏆 No scores yet. Play a round to open the board!")
	}

	msg := "🏆 Coin Dash Leaderboard\n━━━━━━━━━━━━━━━\n"
	for i, entry := range entries {
		msg += fmt.Sprintf("%s %s: %d\n", rankLabel(i, entry.Rank), entry.DisplayName, entry.Score)
	}
	msg += "━━━━━━━━━━━━━━━"

	return c.Reply(msg)
}

// nativeRanking renders Telegram's own scoreboard for the game message
// the sender last played from. Fallback for when the local store is
// down; best effort only.
func (h *GameHandler) nativeRanking(c tele.Context, contextID string) (string, bool) {
	sender := c.Sender()
	if h.scoreboard == nil || sender == nil {
		return "", false
	}
	ref, ok := h.refs.Lookup(contextID, sender.ID)
	if !ok {
		return "", false
	}

	scores, err := h.scoreboard.HighScores(context.Background(), ref, sender.ID)
	if err != nil {
		log.Warn().Err(err).Int64("player_id", sender.ID).Msg("Native scoreboard fallback failed")
		return "", false
	}
	if len(scores) == 0 {
		return "", false
	}

	msg := "🏆 Coin Dash Leaderboard (from Telegram)\n━━━━━━━━━━━━━━━\n"
	for i, s := range scores {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("player-%d", s.UserID)
		}
		msg += fmt.Sprintf("%s %s: %d\n", rankLabel(i, s.Position), name, s.Score)
	}
	msg += "━━━━━━━━━━━━━━━"
	return msg, true
}

func rankLabel(index, rank int) string {
	medals := []string{"🥇", "🥈", "🥉"}
	if index < len(medals) {
		return medals[index]
	}
	return fmt.Sprintf("%d.", rank)
}

// HandleMyRank handles the /myrank command.
func (h *GameHandler) HandleMyRank(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	contextID := h.contextOf(c)
	rank, err := h.ranker.RankOf(context.Background(), contextID, sender.ID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Reply("📭 You have no recorded score here yet. Play a round first!")
	}
	if err != nil {
		// A store failure is not a verdict; never present it as one.
		log.Error().Err(err).Str("context_id", contextID).Int64("player_id", sender.ID).Msg("Failed to resolve rank")
		return c.Reply("❌ Could not load your rank, please try again later")
	}

	return c.Reply(fmt.Sprintf("📊 %s, you are rank %d on this board", displayName(sender), rank))
}

func (h *GameHandler) contextOf(c tele.Context) string {
	if chat := c.Chat(); chat != nil {
		return h.cfg.ContextFor(chat.ID)
	}
	return h.cfg.Ranking.DefaultContext
}

// callbackRef extracts the game message location from a callback.
func callbackRef(cb *tele.Callback) oracle.MessageRef {
	if cb.Message != nil && cb.Message.Chat != nil {
		return oracle.MessageRef{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.ID}
	}
	return oracle.MessageRef{InlineID: cb.MessageID}
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return fmt.Sprintf("player-%d", u.ID)
}
