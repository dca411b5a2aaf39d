package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender delivers messages through the SendGrid v3 API.
type SendgridSender struct {
	key        string
	host       string
	client     *rest.Client
	from       *sgmail.Email
	subjPrefix string
}

var _ Sender = (*SendgridSender)(nil)

// NewSendgridSender constructs a SendgridSender.
func NewSendgridSender(key, fromName, fromEmail, subjPrefix string) *SendgridSender {
	return &SendgridSender{
		key:        key,
		host:       sendgridHost,
		client:     rest.DefaultClient,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: subjPrefix,
	}
}

// Send posts one message. A non-2xx response is reported as an unsuccessful
// result rather than an error so callers can log the provider body.
func (s *SendgridSender) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, fmt.Errorf("sendgrid request: %w", err)
	}
	httpRes, err := s.client.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("sendgrid request: %w", err)
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return nil, fmt.Errorf("sendgrid response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &SendResult{Success: false, Message: fmt.Sprintf("status %d: %s", res.StatusCode, res.Body)}, nil
	}
	return &SendResult{Success: true, Message: fmt.Sprintf("status %d", res.StatusCode)}, nil
}

func (s *SendgridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}
