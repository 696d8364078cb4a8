package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogSenderWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sender.Send(context.Background(), Message{To: "alice@example.com", Subject: "Code", Text: "Your code: 012345"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "alice@example.com") || !strings.Contains(out, "012345") {
		t.Fatalf("expected recipient and body in log, got %s", out)
	}
}

func TestSMTPSenderHonorsCancelledContext(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1}, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, Message{To: "a@example.com"}); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

// silentSMTPServer accepts connections and never sends a greeting.
func silentSMTPServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func TestSMTPSenderReturnsWhenContextEndsMidSend(t *testing.T) {
	host, port := silentSMTPServer(t)
	sender := NewSMTPSender(SMTPConfig{Host: host, Port: port, TLSMode: "none", Timeout: 30 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := sender.Send(ctx, Message{To: "a@example.com", Subject: "Code", Text: "123456"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("send blocked for %s past its context", elapsed)
	}
}

func TestSMTPDialerTLSModes(t *testing.T) {
	ssl := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 465, TLSMode: "ssl"}, slog.Default()).dialer()
	if !ssl.SSL {
		t.Fatal("expected implicit TLS for ssl mode")
	}
	plain := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 1025, TLSMode: "none"}, slog.Default()).dialer()
	if plain.SSL || plain.TLSConfig != nil {
		t.Fatal("expected no TLS config for none mode")
	}
}
