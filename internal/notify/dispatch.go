package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"gopkg.in/gomail.v2"

	"github.com/sells-group/benefits-notice/internal/resilience"
	"github.com/sells-group/benefits-notice/pkg/msgraph"
)

// Email is one rendered outbound message.
type Email struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// Dispatcher transmits an email from a sender. Implementations return a
// resilience.TransientError for failures worth retrying.
type Dispatcher interface {
	Send(ctx context.Context, from Sender, msg Email) error
}

// ComposeMIME builds the multipart/alternative message for msg.
func ComposeMIME(from Sender, msg Email) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Email, from.Name)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/html", msg.HTML)
	}
	return m
}

// GmailDispatcher sends through the Gmail API as the sender's account.
type GmailDispatcher struct {
	opts []option.ClientOption
}

// NewGmailDispatcher returns a GmailDispatcher. opts follow the sender's
// authenticated client; see googleOptions for why they must not carry
// option.WithHTTPClient.
func NewGmailDispatcher(opts ...option.ClientOption) *GmailDispatcher {
	return &GmailDispatcher{opts: opts}
}

func (d *GmailDispatcher) Send(ctx context.Context, from Sender, msg Email) error {
	if from.Token == nil {
		return eris.New("notify: gmail send without token")
	}
	var raw bytes.Buffer
	if _, err := ComposeMIME(from, msg).WriteTo(&raw); err != nil {
		return eris.Wrap(err, "notify: compose gmail message")
	}

	svc, err := gmail.NewService(ctx, googleOptions(ctx, from.Token, d.opts)...)
	if err != nil {
		return eris.Wrap(err, "notify: gmail service")
	}

	_, err = svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw.Bytes()),
	}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return resilience.FromHTTPStatus(eris.Wrap(err, "notify: gmail send"), gerr.Code)
		}
		return eris.Wrap(err, "notify: gmail send")
	}
	return nil
}

// googleOptions authenticates a Google API client with tok. The client is
// built with oauth2.NewClient, so a base transport comes from the
// oauth2.HTTPClient context value. An option.WithHTTPClient in extra would
// replace the authenticated client and drop the bearer token.
func googleOptions(ctx context.Context, tok *oauth2.Token, extra []option.ClientOption) []option.ClientOption {
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	return append([]option.ClientOption{option.WithHTTPClient(hc)}, extra...)
}

// GraphDispatcher sends through Microsoft Graph as the sender's account.
type GraphDispatcher struct {
	client msgraph.Client
}

// NewGraphDispatcher returns a GraphDispatcher using client.
func NewGraphDispatcher(client msgraph.Client) *GraphDispatcher {
	return &GraphDispatcher{client: client}
}

func (d *GraphDispatcher) Send(ctx context.Context, from Sender, msg Email) error {
	if from.Token == nil {
		return eris.New("notify: graph send without token")
	}
	gm := msgraph.Message{
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		To:       []msgraph.Recipient{{Name: msg.ToName, Address: msg.To}},
	}
	if msg.ReplyTo != "" {
		gm.ReplyTo = []msgraph.Recipient{{Address: msg.ReplyTo}}
	}

	err := d.client.SendMail(ctx, from.Token.AccessToken, gm)
	if err != nil {
		var se *msgraph.StatusError
		if errors.As(err, &se) {
			return resilience.FromHTTPStatus(eris.Wrap(err, "notify: graph send"), se.StatusCode)
		}
		return eris.Wrap(err, "notify: graph send")
	}
	return nil
}

// SMTPConfig is the relay used when no OAuth mailbox is connected.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Configured reports whether a relay host is set.
func (c SMTPConfig) Configured() bool {
	return c.Host != ""
}

// SMTPDispatcher sends through an SMTP relay.
type SMTPDispatcher struct {
	send func(m *gomail.Message) error
}

// NewSMTPDispatcher returns a dispatcher dialing cfg for every message.
func NewSMTPDispatcher(cfg SMTPConfig) *SMTPDispatcher {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	return &SMTPDispatcher{send: func(m *gomail.Message) error { return dialer.DialAndSend(m) }}
}

func (d *SMTPDispatcher) Send(_ context.Context, from Sender, msg Email) error {
	return eris.Wrap(d.send(ComposeMIME(from, msg)), "notify: smtp send")
}
