package notify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"testing"
	"time"
)

func TestMessage(t *testing.T) {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := string(Message("ebms@cancer.gov", []string{"a@x.gov", "b@x.gov"}, "Update of XML from Pubmed", "ebms.nci.nih.gov\nAll done\n", date))

	for _, want := range []string{
		"From: ebms@cancer.gov\r\n",
		"To: a@x.gov, b@x.gov\r\n",
		"Subject: Update of XML from Pubmed\r\n",
		"Date: Fri, 01 Mar 2024 12:00:00 +0000\r\n",
		"\r\n\r\nebms.nci.nih.gov\r\nAll done\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSMTPMailer_NoRecipients(t *testing.T) {
	m := &SMTPMailer{Host: "localhost", From: "ebms@cancer.gov"}
	if err := m.Send(context.Background(), "s", "b"); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}

// fakeRelay accepts one SMTP session and returns the DATA payload.
func fakeRelay(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { conn.Write([]byte(s + "\r\n")) }
		reply("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 localhost")
			case strings.HasPrefix(cmd, "DATA"):
				reply("354 go ahead")
				var buf bytes.Buffer
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					buf.WriteString(l)
				}
				data <- buf.String()
				reply("250 queued")
			case strings.HasPrefix(cmd, "QUIT"):
				reply("221 bye")
				return
			default:
				reply("250 ok")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, data
}

func TestSMTPMailer_Send(t *testing.T) {
	host, port, data := fakeRelay(t)
	m := &SMTPMailer{
		Host: host,
		Port: port,
		From: "ebms@cancer.gov",
		To:   []string{"dev@example.gov"},
	}
	if err := m.Send(context.Background(), "Update of XML from Pubmed", "All modified XML has been refreshed."); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	select {
	case got := <-data:
		if !strings.Contains(got, "All modified XML has been refreshed.") {
			t.Errorf("payload missing body:\n%s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay never received DATA")
	}
}

type failingMailer struct{ calls int }

func (f *failingMailer) Send(ctx context.Context, subject, body string) error {
	f.calls++
	return errors.New("relay down")
}

func TestReport_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	m := &failingMailer{}

	Report(context.Background(), m, logger, "subject", "body")

	if m.calls != 1 {
		t.Errorf("expected one send attempt, got %d", m.calls)
	}
	if !strings.Contains(buf.String(), "relay down") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestReport_NilMailer(t *testing.T) {
	Report(context.Background(), nil, log.New(&bytes.Buffer{}, "", 0), "s", "b")
}
