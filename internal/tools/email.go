package tools

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// MailConfig carries the IMAP/SMTP endpoints for the mailbox tools.
type MailConfig struct {
	IMAPAddr string // host:port, TLS
	SMTPAddr string // host:port, STARTTLS via net/smtp
	Username string
	Password string
	From     string
}

// SearchEmailTool searches the inbox by free text.
type SearchEmailTool struct {
	cfg MailConfig
}

func NewSearchEmailTool(cfg MailConfig) *SearchEmailTool {
	return &SearchEmailTool{cfg: cfg}
}

func (t *SearchEmailTool) Name() string { return "search_emails" }

func (t *SearchEmailTool) Description() string {
	return "Searches the inbox for messages matching a text query and returns sender, subject and date for each hit."
}

func (t *SearchEmailTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Free text to search for",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum messages to return (default: 10)",
				"default":     10,
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchEmailTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	c, err := t.dial()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("failed to select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Text = []string{query}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(ids) == 0 {
		return EmailSearchResult{Query: query}, nil
	}

	// Newest messages have the highest sequence numbers
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var hits []EmailSummary
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		hits = append(hits, EmailSummary{
			SeqNum:  msg.SeqNum,
			From:    formatAddresses(msg.Envelope.From),
			Subject: msg.Envelope.Subject,
			Date:    msg.Envelope.Date,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	return EmailSearchResult{Query: query, Total: len(hits), Messages: hits}, nil
}

func (t *SearchEmailTool) dial() (*client.Client, error) {
	c, err := client.DialTLS(t.cfg.IMAPAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(t.cfg.Username, t.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	return c, nil
}

type EmailSummary struct {
	SeqNum  uint32    `json:"seq_num"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

type EmailSearchResult struct {
	Query    string         `json:"query"`
	Total    int            `json:"total"`
	Messages []EmailSummary `json:"messages,omitempty"`
}

// ReadEmailTool fetches one message body by sequence number.
type ReadEmailTool struct {
	cfg MailConfig
}

func NewReadEmailTool(cfg MailConfig) *ReadEmailTool {
	return &ReadEmailTool{cfg: cfg}
}

func (t *ReadEmailTool) Name() string { return "read_email" }

func (t *ReadEmailTool) Description() string {
	return "Reads a single email by its sequence number and returns headers and the plain text body."
}

func (t *ReadEmailTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seq_num": map[string]any{
				"type":        "integer",
				"description": "Sequence number from a previous search_email result",
			},
		},
		"required": []string{"seq_num"},
	}
}

func (t *ReadEmailTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	seqFloat, ok := args["seq_num"].(float64)
	if !ok || seqFloat <= 0 {
		return nil, fmt.Errorf("seq_num is required")
	}
	seqNum := uint32(seqFloat)

	c, err := client.DialTLS(t.cfg.IMAPAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()

	if err := c.Login(t.cfg.Username, t.cfg.Password); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("failed to select inbox: %w", err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not found", seqNum)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("message %d has no body", seqNum)
	}

	parsed, err := mail.ReadMessage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	text, err := io.ReadAll(parsed.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return EmailReadResult{
		SeqNum:  seqNum,
		From:    parsed.Header.Get("From"),
		To:      parsed.Header.Get("To"),
		Subject: parsed.Header.Get("Subject"),
		Date:    parsed.Header.Get("Date"),
		Body:    string(text),
	}, nil
}

type EmailReadResult struct {
	SeqNum  uint32 `json:"seq_num"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// SendEmailTool sends a plain text message over SMTP.
type SendEmailTool struct {
	cfg MailConfig
}

func NewSendEmailTool(cfg MailConfig) *SendEmailTool {
	return &SendEmailTool{cfg: cfg}
}

func (t *SendEmailTool) Name() string { return "send_email" }

func (t *SendEmailTool) Description() string {
	return "Sends a plain text email to one or more recipients."
}

func (t *SendEmailTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address (comma-separated for several)",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Message subject",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain text body",
			},
		},
		"required": []string{"to", "subject", "body"},
	}
}

func (t *SendEmailTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	to, _ := args["to"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	if to == "" || subject == "" || body == "" {
		return nil, fmt.Errorf("to, subject and body are required")
	}

	recipients := strings.Split(to, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	msg := strings.Join([]string{
		"From: " + t.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	host := t.cfg.SMTPAddr
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, host)

	if err := smtp.SendMail(t.cfg.SMTPAddr, auth, t.cfg.From, recipients, []byte(msg)); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return EmailSendResult{To: recipients, Subject: subject, SentAt: time.Now()}, nil
}

type EmailSendResult struct {
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	SentAt  time.Time `json:"sent_at"`
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s@%s>", a.PersonalName, a.MailboxName, a.HostName))
		} else {
			parts = append(parts, fmt.Sprintf("%s@%s", a.MailboxName, a.HostName))
		}
	}
	return strings.Join(parts, ", ")
}
