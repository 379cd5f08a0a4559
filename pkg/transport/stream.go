package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/llm"
)

// maxFrameSize bounds a single stream frame.
const maxFrameSize = 1024 * 1024

// readStream consumes newline-delimited "data: " frames until the [DONE]
// sentinel, delivering each non-empty content delta to onToken. Frames that do
// not decode are skipped. Lines without the frame prefix (comments, event
// names, keep-alives) are ignored.
func (c *Client) readStream(body io.Reader, onToken func(string)) (string, bool, error) {
	var (
		full      strings.Builder
		delivered bool
		frames    int
		skipped   int
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 || !bytes.HasPrefix(line, []byte(llm.StreamFramePrefix)) {
			continue
		}

		payload := bytes.TrimSpace(line[len(llm.StreamFramePrefix):])
		if string(payload) == llm.StreamDone {
			c.logger.Debug("stream complete",
				zap.Int("frames", frames),
				zap.Int("skipped", skipped),
			)
			return full.String(), delivered, nil
		}
		frames++

		var chunk llm.StreamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			skipped++
			c.logger.Warn("skipping stream frame",
				zap.Error(&ParseError{Data: truncate(string(payload), 100), Err: err}),
			)
			continue
		}

		token := chunk.Token()
		if token == "" {
			continue
		}

		full.WriteString(token)
		c.logger.Debug("stream token", zap.String("token", truncate(token, 50)))
		if onToken != nil {
			onToken(token)
		}
		delivered = true
	}

	if err := scanner.Err(); err != nil {
		return full.String(), delivered, fmt.Errorf("read stream: %w", err)
	}

	if frames == 0 {
		return "", false, fmt.Errorf("read stream: %w", io.ErrUnexpectedEOF)
	}

	c.logger.Warn("stream ended without sentinel frame",
		zap.Int("frames", frames),
		zap.Int("answer_chars", full.Len()),
	)
	return full.String(), delivered, nil
}
