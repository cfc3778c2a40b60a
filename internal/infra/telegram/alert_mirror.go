package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/notification"
	tgdomain "civic_followup_engine/internal/domain/telegram"
)

// statusButtonUnique routes inline status buttons to the status callback handler.
const statusButtonUnique = "cstatus"

// EscalationAlerts decorates a notification.Sender: every escalation that was
// accepted by the inner sender is mirrored to the ops chat with inline status
// buttons. Other notifications pass through untouched.
type EscalationAlerts struct {
	notification.Sender
	client tgdomain.Client
	chatID int64
	logger *logrus.Entry
}

func NewEscalationAlerts(inner notification.Sender, client tgdomain.Client, opsChatID int64, logger *logrus.Entry) *EscalationAlerts {
	return &EscalationAlerts{
		Sender: inner,
		client: client,
		chatID: opsChatID,
		logger: logger.WithField("component", "telegram_alerts"),
	}
}

// SendEscalation returns the inner sender's result. A failed Telegram alert is
// only logged.
func (a *EscalationAlerts) SendEscalation(ctx context.Context, targetEmail, departmentName, complaintID, category, reason string) error {
	if err := a.Sender.SendEscalation(ctx, targetEmail, departmentName, complaintID, category, reason); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("🚨 Complaint escalated\n\n")
	msg.WriteString(fmt.Sprintf("ID: %s\n", complaintID))
	msg.WriteString(fmt.Sprintf("Department: %s\n", departmentName))
	msg.WriteString(fmt.Sprintf("Category: %s\n", category))
	msg.WriteString(fmt.Sprintf("Reason: %s\n", reason))
	msg.WriteString(fmt.Sprintf("Supervisor notified at: %s", targetEmail))

	opts := &telebot.SendOptions{ReplyMarkup: StatusButtons(complaintID), ParseMode: telebot.ModeDefault}
	if err := a.client.SendMessage(a.chatID, msg.String(), opts); err != nil {
		a.logger.WithError(err).WithField("complaint_id", complaintID).Error("Failed to mirror escalation to ops chat")
	}
	return nil
}

// StatusButtons builds the inline keyboard an operator uses to move a complaint on.
func StatusButtons(complaintID string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	btnProgress := markup.Data("In progress", statusButtonUnique, string(complaint.StatusInProgress), complaintID)
	btnResolved := markup.Data("Resolved", statusButtonUnique, string(complaint.StatusResolved), complaintID)
	btnRejected := markup.Data("Rejected", statusButtonUnique, string(complaint.StatusRejected), complaintID)
	markup.Inline(
		markup.Row(btnProgress),
		markup.Row(btnResolved, btnRejected),
	)
	return markup
}
