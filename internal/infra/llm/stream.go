package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// StreamReader parses a newline-delimited JSON response stream. Each line
// optionally carries a response fragment and/or a terminal done marker;
// reading stops at the first done:true.
type StreamReader struct {
	reader      *bufio.Reader
	accumulator strings.Builder
}

// NewStreamReader creates a stream reader over the response body.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and calls the callback for each chunk. Blocks
// until the terminal marker, EOF, or context cancellation.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := s.readChunk()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if chunk == nil {
			continue // empty or malformed line
		}

		callback(*chunk)
		if chunk.Done {
			return nil
		}
	}
}

// Cumulative returns all response fragments received so far.
func (s *StreamReader) Cumulative() string {
	return s.accumulator.String()
}

func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		if len(line) == 0 {
			return nil, err
		}
		// Process the final unterminated line before surfacing EOF.
	}

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var payload struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		// Skip malformed lines rather than aborting the stream.
		return nil, nil
	}

	if payload.Response != "" {
		s.accumulator.WriteString(payload.Response)
	}

	return &StreamChunk{
		Response:   payload.Response,
		Cumulative: s.accumulator.String(),
		Done:       payload.Done,
	}, nil
}
