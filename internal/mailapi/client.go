// Package mailapi is a thin adapter over the Gmail REST API.
//
// It resolves the handful of calls the frontend needs (list, fetch, send)
// and nothing more. No MIME decoding, no rendering; message bodies travel
// as snippets and metadata headers, and outbound mail is plain text.
package mailapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// listFetchConcurrency caps the parallel metadata fetches behind one listing.
const listFetchConcurrency = 8

// metadataHeaders are the only message headers the frontend displays.
var metadataHeaders = []string{"From", "To", "Subject", "Date"}

// MessageSummary is one row of a mailbox listing.
type MessageSummary struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	Snippet  string   `json:"snippet"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Subject  string   `json:"subject"`
	Date     string   `json:"date"`
	LabelIDs []string `json:"labelIds"`
}

// MessageList is a page of summaries plus the token for the next page.
type MessageList struct {
	Messages      []MessageSummary `json:"messages"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

// OutgoingMessage is a plain-text message to send.
type OutgoingMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ListOptions narrows a mailbox listing.
type ListOptions struct {
	Query      string
	PageToken  string
	MaxResults int64
}

// Client wraps the Gmail users service for one user's access token.
// Construct per request; tokens are short-lived.
type Client struct {
	svc *gmail.UsersService
}

// NewClient builds a Gmail client authenticated with the given access token.
// Extra options are for tests (endpoint override).
func NewClient(ctx context.Context, accessToken string, opts ...option.ClientOption) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gmail.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// ListMessages returns one page of the mailbox matching opts.
// Each summary needs a follow-up metadata fetch; the list call returns ids only.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) (*MessageList, error) {
	req := c.svc.Messages.List("me").Context(ctx)
	if opts.Query != "" {
		req.Q(opts.Query)
	}
	if opts.PageToken != "" {
		req.PageToken(opts.PageToken)
	}
	if opts.MaxResults > 0 {
		req.MaxResults(opts.MaxResults)
	}

	res, err := req.Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	list := &MessageList{
		Messages:      make([]MessageSummary, len(res.Messages)),
		NextPageToken: res.NextPageToken,
	}

	// The list call returns ids only; fan the per-message metadata fetches
	// out in parallel, writing each result into its listing slot.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listFetchConcurrency)
	for i, m := range res.Messages {
		g.Go(func() error {
			summary, err := c.GetMessage(gctx, m.Id)
			if err != nil {
				return err
			}
			list.Messages[i] = *summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

// GetMessage fetches one message's metadata and snippet.
func (c *Client) GetMessage(ctx context.Context, id string) (*MessageSummary, error) {
	msg, err := c.svc.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	summary := &MessageSummary{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				summary.From = h.Value
			case "To":
				summary.To = h.Value
			case "Subject":
				summary.Subject = h.Value
			case "Date":
				summary.Date = h.Value
			}
		}
	}
	return summary, nil
}

// SendMessage sends a plain-text message and returns its id.
func (c *Client) SendMessage(ctx context.Context, out OutgoingMessage) (string, error) {
	sent, err := c.svc.Messages.Send("me", &gmail.Message{
		Raw: buildRawMessage(out),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return sent.Id, nil
}

// buildRawMessage assembles an RFC 822 plain-text message, base64url encoded
// the way the Gmail API expects.
func buildRawMessage(out OutgoingMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", out.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", out.Subject)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(out.Body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
