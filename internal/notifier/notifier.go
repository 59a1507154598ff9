// Package notifier e-mails run summaries when a verification run fails.
package notifier

import (
	"fmt"
	"log"

	"github.com/tabide/pagecheck/internal/config"
	"github.com/tabide/pagecheck/internal/notifier/providers"
	"github.com/tabide/pagecheck/internal/report"
	"github.com/tabide/pagecheck/internal/types"
)

// Notifier handles sending failure notifications
type Notifier struct {
	sender  Sender
	builder *report.Builder
	to      string
}

// Sender defines the interface for email sending
type Sender interface {
	Send(to, subject, htmlBody, plainBody string) error
}

// New creates a new notifier that sends to toAddr with the given sender
func New(sender Sender, toAddr string) (*Notifier, error) {
	builder, err := report.New()
	if err != nil {
		return nil, err
	}
	return &Notifier{sender: sender, builder: builder, to: toAddr}, nil
}

// NewFromConfig creates a notifier based on configuration
func NewFromConfig(cfg config.EmailConfig) (*Notifier, error) {
	if cfg.ToAddr == "" {
		return nil, fmt.Errorf("email notifications need a to_address")
	}

	var sender Sender

	switch cfg.Provider {
	case "smtp":
		sender = providers.NewSMTPSender(
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.SMTPUser,
			cfg.SMTPPass,
			cfg.FromAddr,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", cfg.Provider)
	}

	return New(sender, cfg.ToAddr)
}

// NotifyFailure sends a summary of result if it failed. Passing runs are
// not reported.
func (n *Notifier) NotifyFailure(result *types.RunResult) error {
	if result.Passed() {
		return nil
	}

	s, err := n.builder.Summarize(result)
	if err != nil {
		return err
	}

	if err := n.sender.Send(n.to, s.Subject, s.HTMLBody, s.PlainBody); err != nil {
		return err
	}
	log.Printf("[notifier] Sent failure report for %s to %s", result.Name, n.to)
	return nil
}
