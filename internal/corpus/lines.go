package corpus

import (
	"bufio"
	"bytes"
	"strings"
)

// parseLines treats each non-blank line as one payload.
func parseLines(data []byte) []string {
	var payloads []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		payloads = append(payloads, line)
	}
	return payloads
}
