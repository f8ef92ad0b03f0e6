package analysis

import (
	"fmt"
	"strings"
)

// Delimiter separates payload segments. The feedback prompt tells the model
// to split on exactly this token.
const Delimiter = "!BREAK!"

const (
	separator   = " " + Delimiter + " "
	neutralised = "[BREAK]"
)

// BuildPayload joins question, transcript and the serialised distribution
// into the three-segment feedback payload. A delimiter occurring inside any
// segment is rewritten to [BREAK] so the payload always splits into three.
func BuildPayload(question, transcript string, dist Distribution) string {
	return strings.Join([]string{
		neutralise(question),
		neutralise(transcript),
		neutralise(dist.String()),
	}, separator)
}

// ParsePayload splits a payload back into its segments.
func ParsePayload(payload string) (question, transcript, emotions string, err error) {
	parts := strings.Split(payload, Delimiter)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("payload has %d segments, want 3", len(parts))
	}
	question = strings.TrimSuffix(parts[0], " ")
	transcript = strings.TrimSuffix(strings.TrimPrefix(parts[1], " "), " ")
	emotions = strings.TrimPrefix(parts[2], " ")
	return question, transcript, emotions, nil
}

func neutralise(s string) string {
	return strings.ReplaceAll(s, Delimiter, neutralised)
}
