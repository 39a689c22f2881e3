package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"coindash-bot/internal/config"
	"coindash-bot/internal/ingest"
	"coindash-bot/internal/model"
)

// AdminHandler handles manual score commands.
type AdminHandler struct {
	cfg       *config.Config
	submitter Submitter
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg *config.Config, submitter Submitter) *AdminHandler {
	return &AdminHandler{
		cfg:       cfg,
		submitter: submitter,
	}
}

// HandleSetScore handles the /setscore command.
// Format: /setscore <score>
// Submits a manual score for the sender. The improvement rule still
// applies, so this cannot lower a recorded best.
func (h *AdminHandler) HandleSetScore(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /setscore <score>\nExample: /setscore 150")
	}

	score, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Score must be an integer")
	}

	contextID := h.contextOf(c)
	report, err := ingest.NewReport(contextID, sender.ID, displayName(sender), score, model.SourceManualOverride)
	if err != nil {
		return c.Reply("❌ Score is out of the accepted range")
	}

	out, err := h.submitter.Reconcile(context.Background(), report)
	if err != nil {
		return c.Reply("❌ Could not record the score, please try again")
	}

	if !out.Accepted {
		return c.Reply(fmt.Sprintf("ℹ️ Not recorded: your best is already %d", out.NewBest))
	}
	return c.Reply(fmt.Sprintf("✅ Recorded %d as your score", out.NewBest))
}

// HandleForceScore handles the /forcescore command.
// Format: /forcescore <user_id> <score>
// Admin only. Bypasses the improvement rule, so it can lower a best.
func (h *AdminHandler) HandleForceScore(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Usage: /forcescore <user_id> <score>\nExample: /forcescore 123456789 0")
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ User ID must be an integer")
	}
	score, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Reply("❌ Score must be an integer")
	}

	contextID := h.contextOf(c)
	report, err := ingest.NewReport(contextID, targetID, "", score, model.SourceManualOverride)
	if err != nil {
		return c.Reply("❌ Score is out of the accepted range")
	}
	report.Force = true

	out, err := h.submitter.Reconcile(context.Background(), report)
	if err != nil {
		return c.Reply("❌ Could not apply the override, please try again")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("previous_best", out.PreviousBest).
		Int64("new_best", out.NewBest).
		Str("operation", "force_score").
		Msg("Admin score override executed")

	return c.Reply(fmt.Sprintf(
		"✅ Override applied\n\n"+
			"👤 User ID: %d\n"+
			"📝 Previous best: %d\n"+
			"💯 New best: %d",
		targetID, out.PreviousBest, out.NewBest,
	))
}

func (h *AdminHandler) contextOf(c tele.Context) string {
	if chat := c.Chat(); chat != nil {
		return h.cfg.ContextFor(chat.ID)
	}
	return h.cfg.Ranking.DefaultContext
}
