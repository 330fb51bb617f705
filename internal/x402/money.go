package x402

import (
	"fmt"
	"strconv"
	"strings"
)

// usdcDecimals is the atomic precision of the settlement asset.
const usdcDecimals = 6

// Money is a USD amount in atomic USDC units (6 decimals). Integer math
// only, so evaluating a price twice can never diverge.
type Money struct {
	Atomic int64
}

// ParsePrice converts a display string like "$0.03" into atomic units.
func ParsePrice(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, "$") {
		return Money{}, fmt.Errorf("price %q must start with $", s)
	}
	raw = raw[1:]

	whole := raw
	frac := ""
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		whole = raw[:i]
		frac = raw[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > usdcDecimals {
		return Money{}, fmt.Errorf("price %q has more than %d decimal places", s, usdcDecimals)
	}
	frac = frac + strings.Repeat("0", usdcDecimals-len(frac))

	wholeVal, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("invalid price %q: %w", s, err)
	}
	fracVal := int64(0)
	if frac != "" {
		fracVal, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Money{}, fmt.Errorf("invalid price %q: %w", s, err)
		}
	}

	return Money{Atomic: wholeVal*1_000_000 + fracVal}, nil
}

// Times multiplies by a unit count.
func (m Money) Times(n int) Money {
	return Money{Atomic: m.Atomic * int64(n)}
}

// AtomicString is the wire amount for payment requirements.
func (m Money) AtomicString() string {
	return strconv.FormatInt(m.Atomic, 10)
}

// Display renders a dollar string, trailing zeros trimmed but never shorter
// than two decimals: 30000 -> "$0.03", 300000 -> "$0.30", 25000 -> "$0.025".
func (m Money) Display() string {
	whole := m.Atomic / 1_000_000
	frac := m.Atomic % 1_000_000

	fracStr := fmt.Sprintf("%06d", frac)
	fracStr = strings.TrimRight(fracStr, "0")
	for len(fracStr) < 2 {
		fracStr += "0"
	}
	return fmt.Sprintf("$%d.%s", whole, fracStr)
}
