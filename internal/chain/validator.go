package chain

import (
	"regexp"
	"strings"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// Address classification is purely structural. Patterns must not
// overlap across networks; the one deliberate exception is the EVM
// family, where ETH and BSC share the 0x format and the raw string
// cannot disambiguate. DetectNetwork reports ETH for those; callers
// that mean USDT-BEP20 pass it as the expected network instead.
var networkPatterns = map[string][]*regexp.Regexp{
	models.NetworkBTC: {
		regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`), // legacy P2PKH / P2SH
		regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`),              // bech32
	},
	models.NetworkLTC: {
		regexp.MustCompile(`^[LM][a-km-zA-HJ-NP-Z1-9]{26,33}$`),
		regexp.MustCompile(`^ltc1[a-z0-9]{39,59}$`),
	},
	models.NetworkETH: {
		regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`),
	},
	models.NetworkUSDTTRC20: {
		regexp.MustCompile(`^T[a-km-zA-HJ-NP-Z1-9]{33}$`),
	},
}

// detectOrder keeps classification deterministic regardless of map
// iteration order.
var detectOrder = []string{
	models.NetworkBTC,
	models.NetworkLTC,
	models.NetworkETH,
	models.NetworkUSDTTRC20,
}

// DetectNetwork classifies an address string into a supported network.
// Returns ("", false) for anything unrecognized.
func DetectNetwork(address string) (string, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", false
	}
	for _, network := range detectOrder {
		for _, pattern := range networkPatterns[network] {
			if pattern.MatchString(address) {
				return network, true
			}
		}
	}
	return "", false
}

// sameAddressFamily reports whether two networks share an address
// format, so a detected network satisfies an expected one.
func sameAddressFamily(detected, expected string) bool {
	if detected == expected {
		return true
	}
	evm := func(n string) bool {
		return n == models.NetworkETH || n == models.NetworkUSDTBEP20
	}
	return evm(detected) && evm(expected)
}

// ValidateAddress checks an address against an expected network.
// expected may be empty, in which case any supported network passes.
// The detected network is returned even on mismatch so callers can
// report what the address actually looks like.
func ValidateAddress(address, expected string) (detected string, ok bool) {
	detected, ok = DetectNetwork(address)
	if !ok {
		return "", false
	}
	if expected == "" {
		return detected, true
	}
	return detected, sameAddressFamily(detected, expected)
}
