package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/shopspring/decimal"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/metrics"
)

// emailSender is the slice of the Resend client the service needs. Tests
// stub it.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ServiceParams groups dependencies for the transactional mailer.
type ServiceParams struct {
	Emails    emailSender
	FromEmail string
	FromName  string
	AccessURL string
	Logger    *logger.Logger
	Metrics   *metrics.APIMetrics
}

// Service sends post-purchase access emails through Resend.
type Service struct {
	emails    emailSender
	from      string
	accessURL string
	logger    *logger.Logger
	metrics   *metrics.APIMetrics
}

// NewService builds the mailer. The Resend client is injected so tests can
// stub the send call.
func NewService(params ServiceParams) (*Service, error) {
	if params.Emails == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if strings.TrimSpace(params.FromEmail) == "" {
		return nil, fmt.Errorf("from email required")
	}
	if strings.TrimSpace(params.AccessURL) == "" {
		return nil, fmt.Errorf("access url required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	from := params.FromEmail
	if name := strings.TrimSpace(params.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, params.FromEmail)
	}
	return &Service{
		emails:    params.Emails,
		from:      from,
		accessURL: strings.TrimSpace(params.AccessURL),
		logger:    params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// NewResendSender wraps a Resend API key into the sender the service needs.
func NewResendSender(apiKey string) emailSender {
	return resend.NewClient(apiKey).Emails
}

// AccessEmailParams describes one access-delivery email. AmountCents and
// Currency are optional order context surfaced in the email body.
type AccessEmailParams struct {
	To          string
	OrderID     string
	AmountCents int64
	Currency    string
}

// SendAccessEmail delivers the access link for a completed order.
func (s *Service) SendAccessEmail(ctx context.Context, params AccessEmailParams) error {
	if strings.TrimSpace(params.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if strings.TrimSpace(params.OrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	link := s.accessLink(params.OrderID)
	_, err := s.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{params.To},
		Subject: "Your AgentDesk access is ready",
		Html:    renderAccessHTML(link, params),
	})
	if err != nil {
		s.metrics.IncEmail("failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send access email")
	}

	s.metrics.IncEmail("sent")
	s.logger.Info(s.logger.WithField(ctx, "order_id", params.OrderID), "access email sent")
	return nil
}

func (s *Service) accessLink(orderID string) string {
	separator := "?"
	if strings.Contains(s.accessURL, "?") {
		separator = "&"
	}
	return s.accessURL + separator + "checkout_id=" + url.QueryEscape(orderID)
}

func renderAccessHTML(link string, params AccessEmailParams) string {
	var b strings.Builder
	b.WriteString("<h2>Thanks for your purchase!</h2>")
	if params.AmountCents > 0 {
		b.WriteString(fmt.Sprintf("<p>We received your payment of %s.</p>", formatAmount(params.AmountCents, params.Currency)))
	}
	b.WriteString(fmt.Sprintf(`<p><a href="%s">Open your dashboard</a> to get started.</p>`, link))
	b.WriteString(fmt.Sprintf("<p>Order reference: %s</p>", params.OrderID))
	return b.String()
}

// formatAmount renders processor minor units as a display price. Decimal
// division avoids float drift on odd cent values.
func formatAmount(amountCents int64, currency string) string {
	amount := decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == "USD" {
		return "$" + amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + code
}
