package rules

import (
	"strings"

	"github.com/Veraticus/cumin/internal/common"
)

// NormalizeCurrency upper-cases a currency code. An empty code means "any
// currency" and is returned as is; anything else must be three ASCII letters.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	if len(code) != 3 {
		return "", common.InvalidInput("currency %q is not a 3-letter code", code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", common.InvalidInput("currency %q is not a 3-letter code", code)
		}
	}
	return code, nil
}
