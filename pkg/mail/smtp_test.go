package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from     string
	rcpts    []string
	data     bytes.Buffer
	quit     bool
	closed   bool
	rcptFail string
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSMTPClient) Mail(from string) error {
	f.from = from
	return nil
}

func (f *fakeSMTPClient) Rcpt(to string) error {
	if to == f.rcptFail {
		return errors.New("mailbox unavailable")
	}
	f.rcpts = append(f.rcpts, to)
	return nil
}

func (f *fakeSMTPClient) Data() (io.WriteCloser, error) { return nopWriteCloser{&f.data}, nil }

func (f *fakeSMTPClient) Quit() error {
	f.quit = true
	return nil
}

func (f *fakeSMTPClient) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSMTPClient) Auth(smtp.Auth) error { return nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newFakeMailer(t *testing.T, client *fakeSMTPClient) *smtpMailer {
	t.Helper()

	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	require.NoError(t, err)

	sm := mailer.(*smtpMailer)
	sm.dialFn = func(context.Context, SMTPSettings) (io.Closer, smtpClient, error) {
		return nopCloser{}, client, nil
	}
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Body:    "Hello",
	})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    465,
		UseTLS:  true,
	})
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, mailer.(*smtpMailer).cfg.Timeout)
}

func TestSMTPMailerSendDeliversMessage(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{
		ReplyTo: "owner@example.com",
		To:      []string{"Guest@example.com", "guest@example.com", "other@example.com"},
		Subject: "Join Acme",
		Body:    "Welcome",
		Headers: map[string]string{"X-Teamchat-Workspace": "acme", "Subject": "ignored"},
	})
	require.NoError(t, err)

	require.Equal(t, "no-reply@example.com", client.from)
	require.Equal(t, []string{"Guest@example.com", "other@example.com"}, client.rcpts)
	require.True(t, client.quit)
	require.True(t, client.closed)

	payload := client.data.String()
	require.Contains(t, payload, "Reply-To: owner@example.com\r\n")
	require.Contains(t, payload, "X-Teamchat-Workspace: acme\r\n")
	require.Equal(t, 1, strings.Count(payload, "Subject:"))
	require.True(t, strings.HasSuffix(payload, "\r\n\r\nWelcome"))
}

func TestSMTPMailerSendReportsRecipientFailure(t *testing.T) {
	client := &fakeSMTPClient{rcptFail: "bad@example.com"}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{To: []string{"bad@example.com"}})
	require.ErrorContains(t, err, "rcpt to bad@example.com")
	require.False(t, client.quit)
}

func TestSMTPMailerSendRequiresRecipients(t *testing.T) {
	mailer := newFakeMailer(t, &fakeSMTPClient{})

	err := mailer.Send(context.Background(), Message{To: []string{"   ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")
}

func TestSMTPMailerSendValidatesAddresses(t *testing.T) {
	mailer := newFakeMailer(t, &fakeSMTPClient{})

	err := mailer.Send(context.Background(), Message{From: "invalid-from", To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = mailer.Send(context.Background(), Message{To: []string{"user@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")

	err = mailer.Send(context.Background(), Message{To: []string{"user@example.com"}, ReplyTo: "nope"})
	require.ErrorContains(t, err, "invalid reply-to address")
}

func TestFormatMessageSanitisesHeaders(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{
		Subject: "Subject\r\nBreak",
		Body:    "Body",
	})
	require.Contains(t, content, "From: from@example.com")
	require.Contains(t, content, "Subject: Subject  Break")
	require.NotContains(t, content, "Reply-To:")
	require.True(t, strings.HasSuffix(content, "Body"))
}

func TestUniqueAddresses(t *testing.T) {
	result := uniqueAddresses([]string{"alice@example.com", "bob@example.com", " ALICE@example.com ", "", "bob@example.com"})
	require.Equal(t, []string{"alice@example.com", "bob@example.com"}, result)
}
