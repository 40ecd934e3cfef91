// Package msgraph provides a minimal Microsoft Graph client for sending mail
// as a connected user.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client performs Graph operations on behalf of the user owning token.
type Client interface {
	// SendMail sends msg from the signed-in user's mailbox.
	SendMail(ctx context.Context, token string, msg Message) error
	// Me returns the signed-in user's profile.
	Me(ctx context.Context, token string) (*User, error)
}

// Message is an outbound email.
type Message struct {
	Subject  string
	HTMLBody string
	To       []Recipient
	ReplyTo  []Recipient
}

// Recipient is a mail address with an optional display name.
type Recipient struct {
	Name    string
	Address string
}

// User is the subset of the Graph user resource the app reads.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Email returns the user's mail address, falling back to the UPN.
func (u User) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// StatusError is a non-2xx Graph response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("msgraph: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Graph client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type message struct {
	Subject      string      `json:"subject"`
	Body         itemBody    `json:"body"`
	ToRecipients []recipient `json:"toRecipients"`
	ReplyTo      []recipient `json:"replyTo,omitempty"`
}

type sendMailRequest struct {
	Message         message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

func recipients(in []Recipient) []recipient {
	if len(in) == 0 {
		return nil
	}
	out := make([]recipient, len(in))
	for i, r := range in {
		out[i] = recipient{EmailAddress: emailAddress{Name: r.Name, Address: r.Address}}
	}
	return out
}

func (c *httpClient) SendMail(ctx context.Context, token string, msg Message) error {
	body, err := json.Marshal(sendMailRequest{
		Message: message{
			Subject:      msg.Subject,
			Body:         itemBody{ContentType: "HTML", Content: msg.HTMLBody},
			ToRecipients: recipients(msg.To),
			ReplyTo:      recipients(msg.ReplyTo),
		},
		SaveToSentItems: true,
	})
	if err != nil {
		return eris.Wrap(err, "msgraph: marshal sendMail")
	}

	_, err = c.do(ctx, http.MethodPost, "/me/sendMail", token, body)
	return eris.Wrap(err, "msgraph: sendMail")
}

func (c *httpClient) Me(ctx context.Context, token string) (*User, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/me", token, nil)
	if err != nil {
		return nil, eris.Wrap(err, "msgraph: me")
	}

	var u User
	if err := json.Unmarshal(respBody, &u); err != nil {
		return nil, eris.Wrap(err, "msgraph: unmarshal me")
	}
	return &u, nil
}

func (c *httpClient) do(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "msgraph: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "msgraph: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "msgraph: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
