package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/gbcenter/intake-ai/internal/intake"
	"github.com/gbcenter/intake-ai/pkg/logging"
)

// BookingEmailNotifier emails clinic staff whenever a tentative booking lands
// on the calendar, so they can confirm it with the patient.
type BookingEmailNotifier struct {
	sender  EmailSender
	toEmail string
	logger  *logging.Logger
}

// NewBookingEmailNotifier creates a booking notifier. Returns nil when either
// the sender or the destination address is missing; a nil notifier is simply
// not wired into the engine.
func NewBookingEmailNotifier(sender EmailSender, toEmail string, logger *logging.Logger) *BookingEmailNotifier {
	if sender == nil || strings.TrimSpace(toEmail) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingEmailNotifier{sender: sender, toEmail: toEmail, logger: logger}
}

// NotifyBooking sends the staff email for one tentative booking.
func (n *BookingEmailNotifier) NotifyBooking(ctx context.Context, b intake.BookingNotice) error {
	subject := fmt.Sprintf("Nueva cita tentativa: %s (%s)", b.PatientName, b.SlotLabel)
	body := fmt.Sprintf(
		"Se registró una cita tentativa desde WhatsApp.\n\n"+
			"Paciente: %s\nTeléfono: %s\nHorario: %s (%s)\n\n"+
			"La cita quedó en estado tentativo en el calendario; favor de confirmar con el paciente.",
		b.PatientName, b.ContactID, b.SlotLabel, b.SlotStart.Format("2006-01-02 15:04"),
	)

	if err := n.sender.Send(ctx, EmailMessage{
		To:      n.toEmail,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: booking notification failed: %w", err)
	}

	n.logger.Info("booking notification sent", "patient", b.PatientName, "slot", b.SlotLabel)
	return nil
}
