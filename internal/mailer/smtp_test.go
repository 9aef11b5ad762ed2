package mailer

import (
	"strings"
	"testing"
)

func TestBuildMessage_HeadersAndBody(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "user@example.com", "scan complete", "<p>hi</p>", "Triager"))

	wantLines := []string{
		"From: Triager <noreply@example.com>\r\n",
		"To: user@example.com\r\n",
		"Subject: scan complete\r\n",
		"MIME-Version: 1.0\r\n",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	for _, want := range wantLines {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q\nfull message:\n%s", want, msg)
		}
	}
	if !strings.HasSuffix(msg, "<p>hi</p>") {
		t.Errorf("message body not appended verbatim, got suffix: %q", msg[len(msg)-20:])
	}
}

func TestBuildMessage_HeadersEndBeforeBody(t *testing.T) {
	msg := string(buildMessage("a@b.com", "c@d.com", "subj", "BODY", "Sender"))
	idx := strings.Index(msg, "\r\n\r\n")
	if idx == -1 {
		t.Fatal("expected a blank line separating headers from body")
	}
	if !strings.HasSuffix(msg, "BODY") {
		t.Errorf("expected body to follow the blank line, got: %q", msg)
	}
}

func TestNewSMTPMailer_BuildsAddr(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", 587, "user", "pass", "from@example.com")
	if m.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q, want smtp.example.com:587", m.addr)
	}
	if m.from != "from@example.com" {
		t.Errorf("from = %q, want from@example.com", m.from)
	}
}
