package compose

import "strings"

// ParseRecipients splits a comma-separated recipient string into trimmed entries.
// Order and duplicates are preserved; empty entries are dropped.
func ParseRecipients(raw string) []string {
	parts := strings.Split(raw, ",")
	recipients := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}
