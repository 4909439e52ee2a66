package automation

import (
	"encoding/json"
	"fmt"
	"strings"
)

func decodeChoices(raw string) ([]optionChoice, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var choices []optionChoice
	if err := json.Unmarshal([]byte(raw), &choices); err != nil {
		return nil, fmt.Errorf("decode option choices: %w", err)
	}
	return choices, nil
}
