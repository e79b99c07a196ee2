package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
	"pubdigest/internal/retry"
)

// SMTP sends each digest as a multipart/alternative email.
type SMTP struct {
	cfg    config.SMTPConfig
	policy retry.Policy
	logger *slog.Logger
}

func NewSMTP(cfg config.SMTPConfig, retryCfg config.RetryConfig, logger *slog.Logger) *SMTP {
	return &SMTP{
		cfg:    cfg,
		policy: retry.FromConfig(retryCfg),
		logger: logger,
	}
}

func (s *SMTP) Deliver(ctx context.Context, recipient domain.Subscriber, digest *domain.Digest) error {
	msg, err := s.message(recipient, digest)
	if err != nil {
		return err
	}

	client, err := s.client()
	if err != nil {
		return err
	}

	err = s.policy.Do(ctx, s.logger.With("recipient", recipient.Email), func(ctx context.Context) error {
		return client.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient.Email, err)
	}

	s.logger.Debug("mail sent", "recipient", recipient.Email, "subject", digest.Subject)
	return nil
}

func (s *SMTP) message(recipient domain.Subscriber, digest *domain.Digest) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if s.cfg.ReplyTo != "" {
		if err := msg.ReplyTo(s.cfg.ReplyTo); err != nil {
			return nil, fmt.Errorf("set reply-to address: %w", err)
		}
	}
	if err := msg.AddToFormat(recipient.Name, recipient.Email); err != nil {
		return nil, fmt.Errorf("set recipient address: %w", err)
	}

	msg.Subject(digest.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, digest.PlainBody)
	if digest.HTMLBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, digest.HTMLBody)
	}

	return msg, nil
}

func (s *SMTP) client() (*mail.Client, error) {
	var opts []mail.Option

	if s.cfg.UseTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	opts = append(opts, mail.WithPort(s.cfg.Port))

	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

func (s *SMTP) Close() error {
	return nil
}
