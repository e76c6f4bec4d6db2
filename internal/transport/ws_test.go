package transport

import (
	"context"
	"testing"
	"time"
)

func TestWebSocketRoundTrip(t *testing.T) {
	ln, err := ListenWebSocket("127.0.0.1:0", ListenOptions{})
	if err != nil {
		t.Fatalf("ListenWebSocket() error = %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	path := "deadbeef"

	acceptCh := make(chan Connection, 1)
	pathCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, gotPath, err := ln.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
		pathCh <- gotPath
	}()

	dialer := NewWebSocketDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := dialer.Dial(ctx, addr, path, DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close(1000, "done")

	var server Connection
	select {
	case err := <-errCh:
		t.Fatalf("Accept() error = %v", err)
	case server = <-acceptCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Accept()")
	}
	if got := <-pathCh; got != path {
		t.Errorf("accepted path = %q, want %q", got, path)
	}
	defer server.Close(1000, "done")

	payload := []byte("client-hello")
	if err := client.Send(ctx, payload); err != nil {
		t.Fatalf("client.Send() error = %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("server.Receive() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("server received %q, want %q", got, payload)
	}

	reply := []byte("server-hello")
	if err := server.Send(ctx, reply); err != nil {
		t.Fatalf("server.Send() error = %v", err)
	}
	got, err = client.Receive(ctx)
	if err != nil {
		t.Fatalf("client.Receive() error = %v", err)
	}
	if string(got) != string(reply) {
		t.Errorf("client received %q, want %q", got, reply)
	}
}

func TestWebSocketCloseReportsCode(t *testing.T) {
	ln, err := ListenWebSocket("127.0.0.1:0", ListenOptions{})
	if err != nil {
		t.Fatalf("ListenWebSocket() error = %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan Connection, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, _, err := ln.Accept(ctx)
		if err == nil {
			acceptCh <- conn
		}
	}()

	dialer := NewWebSocketDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := dialer.Dial(ctx, ln.Addr().String(), "abc", DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	var server Connection
	select {
	case server = <-acceptCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Accept()")
	}

	if err := server.Close(3001, "protocol error"); err != nil {
		t.Fatalf("server.Close() error = %v", err)
	}

	_, err = client.Receive(ctx)
	closeErr, ok := err.(*CloseError)
	if !ok {
		t.Fatalf("client.Receive() error type = %T, want *CloseError", err)
	}
	if closeErr.Code != 3001 {
		t.Errorf("CloseError.Code = %d, want 3001", closeErr.Code)
	}
}
