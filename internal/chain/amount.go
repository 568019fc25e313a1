package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// Amount is a quantity of coin held in the network's smallest unit
// (satoshi, wei, token base units). Arithmetic stays integral; decimal
// strings only appear at the API and storage boundaries.
type Amount struct {
	Units    *big.Int
	Decimals int
}

func NewAmount(units *big.Int, decimals int) Amount {
	if units == nil {
		units = new(big.Int)
	}
	return Amount{Units: units, Decimals: decimals}
}

// ZeroAmount returns a zero value denominated for the given network.
func ZeroAmount(network string) Amount {
	return NewAmount(new(big.Int), models.NetworkDecimals(network))
}

func (a Amount) Sign() int {
	return a.Units.Sign()
}

func (a Amount) Cmp(b Amount) int {
	return a.Units.Cmp(b.Units)
}

// Sub returns a - b. Both amounts must share a denomination.
func (a Amount) Sub(b Amount) Amount {
	return Amount{Units: new(big.Int).Sub(a.Units, b.Units), Decimals: a.Decimals}
}

// String renders the amount as a whole-coin decimal, trailing zeros
// trimmed ("0.01", "1", "0.000001").
func (a Amount) String() string {
	s := a.Units.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) <= a.Decimals {
		s = "0" + s
	}
	whole := s[:len(s)-a.Decimals]
	frac := strings.TrimRight(s[len(s)-a.Decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// UnitsString renders the raw smallest-unit integer, the form stored in
// the monitored-address working set.
func (a Amount) UnitsString() string {
	return a.Units.String()
}

// ParseAmount converts a whole-coin decimal string ("0.015") into an
// Amount with the given number of decimals. Excess fractional digits
// are an error rather than silently truncated.
func ParseAmount(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if strings.Contains(frac, ".") {
		return Amount{}, fmt.Errorf("invalid amount: %s", s)
	}
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("amount %s has more than %d decimal places", s, decimals)
	}
	for len(frac) < decimals {
		frac += "0"
	}
	units, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount: %s", s)
	}
	return Amount{Units: units, Decimals: decimals}, nil
}

// ParseUnits converts a raw smallest-unit integer string into an Amount.
func ParseUnits(s string, decimals int) (Amount, error) {
	units, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid unit amount: %s", s)
	}
	return Amount{Units: units, Decimals: decimals}, nil
}

// ParseHexUnits converts a 0x-prefixed hex quantity (the JSON-RPC wire
// form) into an Amount.
func ParseHexUnits(s string, decimals int) (Amount, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	units, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Amount{}, fmt.Errorf("invalid hex amount: %s", s)
	}
	return Amount{Units: units, Decimals: decimals}, nil
}
