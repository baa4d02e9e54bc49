package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/clubpay-backend/pkg/logger"
)

// Notifier renders and sends the payment emails. Every method is best effort:
// failures are logged and never returned, so callers invoke it only after
// their ledger writes have committed.
type Notifier struct {
	sender     Sender
	adminEmail string
	logg       *logger.Logger
}

func NewNotifier(sender Sender, adminEmail string, logg *logger.Logger) *Notifier {
	return &Notifier{sender: sender, adminEmail: strings.TrimSpace(adminEmail), logg: logg}
}

type MembershipConfirmation struct {
	Email       string
	Type        string
	PaidUntil   time.Time
	AmountPence int64
	IsNew       bool
}

type SponsorshipNotice struct {
	GameID      string
	Season      string
	SponsorName string
	Email       string
	AmountPence int64
	Duplicate   bool
}

type ReceiptLine struct {
	Description string
	AmountPence int64
}

type Receipt struct {
	Email   string
	Lines   []ReceiptLine
	Juniors []string
}

// TotalPence sums the receipt lines.
func (r Receipt) TotalPence() int64 {
	var total int64
	for _, line := range r.Lines {
		total += line.AmountPence
	}
	return total
}

func (n *Notifier) MembershipConfirmed(ctx context.Context, c MembershipConfirmation) {
	subject := "Your membership is confirmed"
	if !c.IsNew {
		subject = "Your membership has been renewed"
	}
	n.deliver(ctx, "membership", c.Email, subject, c)
}

// SponsorshipPaid tells the committee inbox about a sponsored game.
func (n *Notifier) SponsorshipPaid(ctx context.Context, s SponsorshipNotice) {
	if n.adminEmail == "" {
		n.logWarn(ctx, "sponsorship paid but no admin email configured", s.GameID)
		return
	}
	n.deliver(ctx, "sponsorship", n.adminEmail, "Game sponsorship received: "+s.SponsorName, s)
}

func (n *Notifier) ChargesPaid(ctx context.Context, r Receipt) {
	if len(r.Lines) == 0 {
		return
	}
	n.deliver(ctx, "receipt", r.Email, "Payment received", r)
}

func (n *Notifier) deliver(ctx context.Context, template, to, subject string, data any) {
	if n == nil || n.sender == nil {
		return
	}
	if strings.TrimSpace(to) == "" {
		n.logWarn(ctx, "notification skipped: no recipient", template)
		return
	}
	html, err := render(template, data)
	if err != nil {
		n.logError(ctx, "render notification", template, err)
		return
	}
	if err := n.sender.Send(ctx, Message{To: to, Subject: subject, HTML: html}); err != nil {
		n.logError(ctx, "send notification", template, err)
	}
}

func (n *Notifier) logWarn(ctx context.Context, msg, detail string) {
	if n.logg == nil {
		return
	}
	n.logg.Warn(n.logg.WithField(ctx, "notification", detail), msg)
}

func (n *Notifier) logError(ctx context.Context, msg, template string, err error) {
	if n.logg == nil {
		return
	}
	n.logg.Error(n.logg.WithField(ctx, "notification", template), msg, err)
}
