package mail

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message represents an outbound plain-text email.
type Message struct {
	From    string
	ReplyTo string
	To      []string
	Subject string
	Body    string
	// Headers carries extra headers such as X-Teamchat-Workspace. Reserved
	// headers set by the mailer are ignored.
	Headers map[string]string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var reservedHeaders = map[string]struct{}{
	"from":         {},
	"to":           {},
	"reply-to":     {},
	"subject":      {},
	"mime-version": {},
	"content-type": {},
}

func formatMessage(from string, to []string, msg Message) string {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
	}
	if replyTo := strings.TrimSpace(msg.ReplyTo); replyTo != "" {
		headers = append(headers, fmt.Sprintf("Reply-To: %s", escapeHeader(replyTo)))
	}
	headers = append(headers, fmt.Sprintf("Subject: %s", escapeHeader(msg.Subject)))

	extra := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		if _, reserved := reservedHeaders[strings.ToLower(strings.TrimSpace(name))]; reserved {
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		headers = append(headers, fmt.Sprintf("%s: %s", escapeHeader(strings.TrimSpace(name)), escapeHeader(msg.Headers[name])))
	}

	headers = append(headers,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
	)

	return strings.Join(headers, "\r\n") + "\r\n" + msg.Body
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}

// uniqueAddresses trims and de-duplicates recipients case-insensitively, keeping first-seen order.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr)
	}
	return result
}
