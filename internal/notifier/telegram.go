// Package notifier delivers published decisions to Telegram.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/quantfold/signalforge/internal/config"
	"github.com/quantfold/signalforge/internal/models"
)

var titleCaser = cases.Title(language.English)

// TelegramNotifier is a decision sink that posts formatted alerts to a
// Telegram chat. A notifier without a bot (disabled or bad token) silently
// drops messages so the pipeline never depends on Telegram being up.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID string
	logger *logrus.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *logrus.Logger) *TelegramNotifier {
	var b *bot.Bot
	if cfg.Enabled && cfg.BotToken != "" {
		var err error
		b, err = bot.New(cfg.BotToken)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Telegram bot; notifications disabled")
		}
	}
	return &TelegramNotifier{
		bot:    b,
		chatID: cfg.ChatID,
		logger: logger,
	}
}

// Publish sends one decision alert.
func (n *TelegramNotifier) Publish(ctx context.Context, decision *models.Decision) error {
	if n.bot == nil {
		n.logger.WithField("decision", decision.ID).Debug("Telegram disabled; skipping alert")
		return nil
	}
	message := FormatDecision(decision)
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      message,
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// FormatDecision renders a decision as a Markdown alert.
func FormatDecision(d *models.Decision) string {
	emoji := "🟢"
	if d.Action == models.ActionShort {
		emoji = "🔴"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %s*\n\n", emoji, d.Action, d.Symbol)
	fmt.Fprintf(&b, "📊 *Regime:* %s\n", regimeLabel(d.Regime))
	fmt.Fprintf(&b, "💪 *Strength:* %.1f/10\n", d.Strength)
	fmt.Fprintf(&b, "🎯 *Confidence:* %.0f%%\n\n", d.Confidence*100)
	fmt.Fprintf(&b, "💲 *Entry:* %s\n", d.EntryPrice.String())
	fmt.Fprintf(&b, "🛑 *Stop Loss:* %s\n", d.StopLoss.String())
	fmt.Fprintf(&b, "🎯 *Take Profit:* %s\n", d.TakeProfit.String())
	fmt.Fprintf(&b, "📐 *Size:* %s @ %dx\n\n", d.PositionSize.StringFixed(2), d.Leverage)
	if len(d.Models) > 0 {
		fmt.Fprintf(&b, "🧩 *Models:* %s\n", strings.Join(modelLabels(d.Models), ", "))
	}
	if d.Rationale != "" {
		fmt.Fprintf(&b, "💬 %s\n", d.Rationale)
	}
	b.WriteString("\n⚡ Manage your risk. This is not financial advice.")
	return b.String()
}

// regimeLabel turns STRONG_TREND into "Strong Trend".
func regimeLabel(r models.Regime) string {
	return titleCaser.String(strings.ToLower(strings.ReplaceAll(string(r), "_", " ")))
}

func modelLabels(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = titleCaser.String(strings.ReplaceAll(id, "_", " "))
	}
	return out
}
