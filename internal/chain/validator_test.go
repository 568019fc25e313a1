package chain

import (
	"testing"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

func TestDetectNetwork(t *testing.T) {
	tests := []struct {
		address string
		network string
		ok      bool
	}{
		// BTC
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", models.NetworkBTC, true},
		{"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", models.NetworkBTC, true},
		{"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", models.NetworkBTC, true},

		// LTC
		{"LdP8Qox1VAhCzLJNqrr74YovaWYyNBUWvL", models.NetworkLTC, true},
		{"MJRSgZ3UUFcTBTBAaN38XAXvZAB3V5HmSo", models.NetworkLTC, true},
		{"ltc1qw508d6qejxtdg4y5r3zarvary0c5xw7kzvwyn6", models.NetworkLTC, true},

		// ETH (the 0x family classifies as ETH; BSC needs caller context)
		{"0x742d35Cc6634C0532925a3b844Bc454e4438f44e", models.NetworkETH, true},
		{"0x55d398326f99059fF775485246999027B3197955", models.NetworkETH, true},

		// TRON
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", models.NetworkUSDTTRC20, true},
		{"TLyqzVGLV1srkB7dToTAEqgDSfPtXRJZYH", models.NetworkUSDTTRC20, true},

		// Whitespace tolerated
		{"  1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa  ", models.NetworkBTC, true},

		// Rejected
		{"", "", false},
		{"hello", "", false},
		{"0x742d35", "", false},
		{"0x742d35Cc6634C0532925a3b844Bc454e4438f44e00", "", false},
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNO", "", false}, // 'O' not in base58
		{"bc1qtooshort", "", false},
		{"T12345", "", false},
		{"4J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			network, ok := DetectNetwork(tt.address)
			if ok != tt.ok || network != tt.network {
				t.Errorf("DetectNetwork(%q) = (%q, %v), want (%q, %v)", tt.address, network, ok, tt.network, tt.ok)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		expected string
		detected string
		ok       bool
	}{
		{"btc matches btc", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", models.NetworkBTC, models.NetworkBTC, true},
		{"ltc against btc fails", "LdP8Qox1VAhCzLJNqrr74YovaWYyNBUWvL", models.NetworkBTC, models.NetworkLTC, false},
		{"no expectation accepts any", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "", models.NetworkUSDTTRC20, true},
		{"evm address satisfies bep20", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", models.NetworkUSDTBEP20, models.NetworkETH, true},
		{"evm address satisfies eth", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", models.NetworkETH, models.NetworkETH, true},
		{"tron against bep20 fails", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", models.NetworkUSDTBEP20, models.NetworkUSDTTRC20, false},
		{"garbage rejected", "not-an-address", models.NetworkBTC, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detected, ok := ValidateAddress(tt.address, tt.expected)
			if ok != tt.ok || detected != tt.detected {
				t.Errorf("ValidateAddress(%q, %q) = (%q, %v), want (%q, %v)",
					tt.address, tt.expected, detected, ok, tt.detected, tt.ok)
			}
		})
	}
}

func TestPatternsDoNotOverlap(t *testing.T) {
	fixtures := map[string][]string{
		models.NetworkBTC: {
			"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy",
			"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		},
		models.NetworkLTC: {
			"LdP8Qox1VAhCzLJNqrr74YovaWYyNBUWvL",
			"ltc1qw508d6qejxtdg4y5r3zarvary0c5xw7kzvwyn6",
		},
		models.NetworkETH: {
			"0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
		models.NetworkUSDTTRC20: {
			"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
		},
	}

	for want, addrs := range fixtures {
		for _, addr := range addrs {
			matches := 0
			for _, patterns := range networkPatterns {
				for _, p := range patterns {
					if p.MatchString(addr) {
						matches++
					}
				}
			}
			if matches != 1 {
				t.Errorf("address %q (network %s) matched %d patterns, want exactly 1", addr, want, matches)
			}
		}
	}
}
