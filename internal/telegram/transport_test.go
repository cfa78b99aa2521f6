package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text    string
		want    string
		symbols []string
		ok      bool
	}{
		{"/analyze MRVL", "analyze", []string{"MRVL"}, true},
		{"/analyze MRVL,SMCI", "analyze", []string{"MRVL", "SMCI"}, true},
		{"/analyze MRVL, SMCI NVDA", "analyze", []string{"MRVL", "SMCI", "NVDA"}, true},
		{"/ANALYZE mrvl", "analyze", []string{"mrvl"}, true},
		{"/analyze@scoutbot MRVL", "analyze", []string{"MRVL"}, true},
		{"/analyze", "analyze", nil, true},
		{"/portfolio", "portfolio", nil, true},
		{"/portfolio@scoutbot", "portfolio", nil, true},
		{"/frobnicate now", "frobnicate", nil, true},
		{"hello there", "", nil, false},
		{"", "", nil, false},
		{"   ", "", nil, false},
	}
	for _, c := range cases {
		cmd, ok := parseCommand(c.text, "42")
		if ok != c.ok {
			t.Errorf("parseCommand(%q): expected ok=%v, got %v", c.text, c.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		if cmd.Name != c.want {
			t.Errorf("parseCommand(%q): expected name %q, got %q", c.text, c.want, cmd.Name)
		}
		if !reflect.DeepEqual(cmd.Symbols, c.symbols) {
			t.Errorf("parseCommand(%q): expected symbols %v, got %v", c.text, c.symbols, cmd.Symbols)
		}
		if cmd.Requester != "42" {
			t.Errorf("parseCommand(%q): expected requester 42, got %q", c.text, cmd.Requester)
		}
	}
}

func TestTransportPollsAndConfirmsOffset(t *testing.T) {
	var polls atomic.Int64
	var lastOffset atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if v := r.URL.Query().Get("offset"); v != "" {
			var off int64
			fmt.Sscanf(v, "%d", &off)
			lastOffset.Store(off)
		}
		resp := updatesResponse{OK: true}
		if n == 1 {
			resp.Result = []update{
				{UpdateID: 7},
				{UpdateID: 8},
			}
			resp.Result[0].Message.Text = "/analyze MRVL"
			resp.Result[0].Message.Chat.ID = 42
			resp.Result[1].Message.Text = "not a command"
			resp.Result[1].Message.Chat.ID = 42
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	tr := NewTransport(NewClient("test-token", WithBaseURL(server.URL)))
	tr.pollTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commands := tr.Commands(ctx)

	select {
	case cmd := <-commands:
		if cmd.Name != "analyze" || cmd.Requester != "42" {
			t.Errorf("Expected analyze command from chat 42, got %+v", cmd)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for command")
	}

	// The non-command update advances the offset without yielding.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lastOffset.Load() == 9 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := lastOffset.Load(); got != 9 {
		t.Errorf("Expected next poll to confirm offset 9, got %d", got)
	}

	cancel()
	select {
	case _, ok := <-commands:
		if ok {
			t.Error("Expected command channel to close on cancel")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected command channel to close")
	}
}

func TestSendMessageUsesHTMLParseMode(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	c := NewClient("test-token", WithBaseURL(server.URL))
	if err := c.SendMessage(context.Background(), "42", "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got["parse_mode"] != "HTML" {
		t.Errorf("Expected HTML parse mode, got %v", got["parse_mode"])
	}
	if got["chat_id"] != "42" || got["text"] != "<b>hi</b>" {
		t.Errorf("Unexpected payload: %v", got)
	}
}

func TestSendMessageErrorsOnHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient("test-token", WithBaseURL(server.URL))
	if err := c.SendMessage(context.Background(), "42", "hi"); err == nil {
		t.Error("Expected error for HTTP 400")
	}
}
