package api

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// validateParticipants enforces the request contract: 1..10 participants,
// unique, non-blank.
func validateParticipants(participants []string) error {
	if len(participants) == 0 {
		return fmt.Errorf("participants must not be empty")
	}
	if len(participants) > 10 {
		return fmt.Errorf("participants must not exceed 10, got %d", len(participants))
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("participants must not contain blank entries")
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("participants must be unique, duplicate %q", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// validateTurnID checks that an optional caller-supplied turn_id parses as
// a uuid.
func validateTurnID(turnID string) error {
	if turnID == "" {
		return nil
	}
	if _, err := uuid.Parse(turnID); err != nil {
		return fmt.Errorf("turn_id must be a valid uuid: %w", err)
	}
	return nil
}
