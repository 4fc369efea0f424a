package provider

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSSE(t *testing.T) {
	t.Run("multiple events", func(t *testing.T) {
		input := "data: one\n\ndata: two\n\ndata: three\n\n"
		var got []string
		err := parseSSE(strings.NewReader(input), func(ev sseEvent) error {
			got = append(got, ev.Data)
			return nil
		})
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		want := []string{"one", "two", "three"}
		if len(got) != len(want) {
			t.Fatalf("got %d events, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("event %d = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("named events and multiline data", func(t *testing.T) {
		input := "event: chunk\ndata: {\"a\":1}\ndata: {\"b\":2}\n\n"
		var events []sseEvent
		err := parseSSE(strings.NewReader(input), func(ev sseEvent) error {
			events = append(events, ev)
			return nil
		})
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].Event != "chunk" {
			t.Errorf("event name = %q, want chunk", events[0].Event)
		}
		if events[0].Data != "{\"a\":1}\n{\"b\":2}" {
			t.Errorf("data = %q", events[0].Data)
		}
	})

	t.Run("comments skipped", func(t *testing.T) {
		input := ": keep-alive\n\ndata: real\n\n"
		var count int
		err := parseSSE(strings.NewReader(input), func(ev sseEvent) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if count != 1 {
			t.Errorf("got %d events, want 1", count)
		}
	})

	t.Run("trailing event without blank line flushed", func(t *testing.T) {
		input := "data: last"
		var got string
		err := parseSSE(strings.NewReader(input), func(ev sseEvent) error {
			got = ev.Data
			return nil
		})
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got != "last" {
			t.Errorf("data = %q, want last", got)
		}
	})

	t.Run("handler error stops parsing", func(t *testing.T) {
		sentinel := errors.New("stop")
		input := "data: one\n\ndata: two\n\n"
		var count int
		err := parseSSE(strings.NewReader(input), func(ev sseEvent) error {
			count++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}
		if count != 1 {
			t.Errorf("handler called %d times, want 1", count)
		}
	})
}
