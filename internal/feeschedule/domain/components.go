package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DecodeFeeComponents parses the stored loose form of custom fees. Unknown
// fields are ignored and a missing or null value counts as zero.
func DecodeFeeComponents(raw []byte) ([]FeeComponent, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var loose []struct {
		Name      string              `json:"name"`
		Value     decimal.NullDecimal `json:"value"`
		Recurring bool                `json:"recurring"`
	}
	if err := json.Unmarshal([]byte(trimmed), &loose); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCustomFees, err)
	}

	out := make([]FeeComponent, 0, len(loose))
	for _, item := range loose {
		value := decimal.Zero
		if item.Value.Valid {
			value = item.Value.Decimal
		}
		out = append(out, FeeComponent{
			Name:      item.Name,
			Value:     value,
			Recurring: item.Recurring,
		})
	}
	return out, nil
}

// ValidateFeeComponents enforces the write-time rules: named, non-negative.
func ValidateFeeComponents(components []FeeComponent) error {
	for i, component := range components {
		if strings.TrimSpace(component.Name) == "" {
			return fmt.Errorf("custom_fees[%d] name is empty: %w", i, ErrInvalidCustomFees)
		}
		if component.Value.IsNegative() {
			return fmt.Errorf("custom_fees[%d] %q has negative value: %w", i, component.Name, ErrInvalidCustomFees)
		}
	}
	return nil
}
