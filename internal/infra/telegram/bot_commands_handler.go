// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Authorizer tells admins apart from everyone else.
type Authorizer interface {
	Authorize(telegramID int64) error
}

func startText(isAdmin bool, firstName string) string {
	if isAdmin {
		return fmt.Sprintf("Hello, %s! The follow-up engine is running. Use /help for the list of commands.", firstName)
	}
	return "Hello! This bot is the operations console of the complaint follow-up engine. Ask an administrator for access."
}

func helpText(isAdmin bool) string {
	if !isAdmin {
		return "No commands are available to you."
	}
	var b strings.Builder
	b.WriteString("Admin commands:\n\n")
	b.WriteString("`/pending`\n - List open complaints.\n\n")
	b.WriteString("`/explain <complaint_id>`\n - Show the action the engine would take now and why.\n\n")
	b.WriteString("`/timeline <complaint_id>`\n - Show the recorded actions of a complaint.\n\n")
	b.WriteString("`/set_status <complaint_id> <status> [notes]`\n - Change the status of a complaint.\n\n")
	b.WriteString("`/jobs`\n - Show pending scheduler jobs.\n\n")
	b.WriteString("`/help`\n - Show this message.")
	return b.String()
}

func RegisterBotCommands(b *telebot.Bot, auth Authorizer, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		isAdmin := auth.Authorize(senderID) == nil
		logCtx.WithField("is_admin", isAdmin).Info("Processing /start command")
		return c.Send(startText(isAdmin, c.Sender().FirstName))
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		isAdmin := auth.Authorize(senderID) == nil
		logCtx.WithField("is_admin", isAdmin).Info("Processing /help command")
		return c.Send(helpText(isAdmin), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}
