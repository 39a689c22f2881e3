package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"coindash-bot/internal/config"
	"coindash-bot/internal/handler"
	"coindash-bot/internal/oracle"
	"coindash-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot        *tele.Bot
	cfg        *config.Config
	scoreboard *oracle.TelegramOracle

	gameHandler  *handler.GameHandler
	adminHandler *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config     *config.Config
	Reconciler *service.Reconciler
	Ranking    *service.RankingService
	Refs       *handler.RefRegistry
}

// New creates a connected Bot with handlers and middleware registered.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	var scoreboard oracle.Oracle
	if deps.Config.Oracle.Enabled {
		b.scoreboard = oracle.NewTelegramOracleFromBot(teleBot)
		scoreboard = b.scoreboard
	}

	b.gameHandler = handler.NewGameHandler(deps.Config, deps.Reconciler, deps.Ranking, deps.Refs, teleBot, scoreboard)
	b.adminHandler = handler.NewAdminHandler(deps.Config, deps.Reconciler)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.gameHandler.HandleStart)
	b.bot.Handle("/ranking", b.gameHandler.HandleRanking)
	b.bot.Handle("/myrank", b.gameHandler.HandleMyRank)
	b.bot.Handle("/setscore", b.adminHandler.HandleSetScore)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/forcescore", b.adminHandler.HandleForceScore)

	// Game launches and score_<n> data both arrive as callbacks.
	b.bot.Handle(tele.OnCallback, b.gameHandler.HandleCallback)

	// Scores posted by the embedded game page.
	b.bot.Handle(tele.OnWebApp, b.gameHandler.HandleWebAppData)
}

// Start starts long polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("game", b.cfg.Game.ShortName).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Telebot returns the underlying telebot instance.
func (b *Bot) Telebot() *tele.Bot {
	return b.bot
}

// Scoreboard returns the native score oracle, nil when disabled.
func (b *Bot) Scoreboard() *oracle.TelegramOracle {
	return b.scoreboard
}
