package email

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@whenmeet.local", "owner@example.com", "New response\r\nBcc: x@evil.test", "hello")
	if !strings.HasPrefix(msg, "From: no-reply@whenmeet.local\r\nTo: owner@example.com\r\n") {
		t.Fatalf("unexpected headers: %q", msg)
	}
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("subject injected a header: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nhello\r\n") {
		t.Fatalf("unexpected body: %q", msg)
	}
}

func TestNewSMTPSender_DefaultFrom(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", " ")
	if s.from != "no-reply@whenmeet.local" || s.addr != "mailpit:1025" {
		t.Fatalf("unexpected sender: %+v", s)
	}
}
