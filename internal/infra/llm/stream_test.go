package llm

import (
	"context"
	"strings"
	"testing"
)

func TestStreamReader_SkipsMalformedLines(t *testing.T) {
	body := "{\"response\":\"a\"}\nnot-json\n\n{\"response\":\"b\"}\n{\"done\":true}\n"
	r := NewStreamReader(strings.NewReader(body))

	var got []string
	err := r.Process(context.Background(), func(chunk StreamChunk) {
		got = append(got, chunk.Response)
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if r.Cumulative() != "ab" {
		t.Errorf("Cumulative = %q, want ab", r.Cumulative())
	}
}

func TestStreamReader_EOFWithoutDone(t *testing.T) {
	r := NewStreamReader(strings.NewReader("{\"response\":\"partial\"}\n"))
	var last StreamChunk
	err := r.Process(context.Background(), func(chunk StreamChunk) {
		last = chunk
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if last.Cumulative != "partial" {
		t.Errorf("Cumulative = %q", last.Cumulative)
	}
}

func TestStreamReader_FinalUnterminatedLine(t *testing.T) {
	r := NewStreamReader(strings.NewReader("{\"response\":\"x\",\"done\":true}"))
	var done bool
	err := r.Process(context.Background(), func(chunk StreamChunk) {
		done = chunk.Done
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !done {
		t.Error("expected done marker from unterminated final line")
	}
}

func TestStreamReader_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewStreamReader(strings.NewReader("{\"response\":\"a\"}\n"))
	err := r.Process(ctx, func(chunk StreamChunk) {
		t.Error("callback should not fire after cancellation")
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
