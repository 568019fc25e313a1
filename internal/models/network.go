package models

// Supported networks
const (
	NetworkBTC       = "BTC"
	NetworkLTC       = "LTC"
	NetworkETH       = "ETH"
	NetworkUSDTBEP20 = "USDT-BEP20"
	NetworkUSDTTRC20 = "USDT-TRC20"
)

// AllNetworks lists every supported network in display order.
var AllNetworks = []string{
	NetworkBTC,
	NetworkLTC,
	NetworkETH,
	NetworkUSDTBEP20,
	NetworkUSDTTRC20,
}

func IsValidNetwork(network string) bool {
	for _, n := range AllNetworks {
		if n == network {
			return true
		}
	}
	return false
}

// NetworkDecimals returns the number of decimal places of the network's
// smallest unit (satoshi, wei, sun-denominated token units).
func NetworkDecimals(network string) int {
	switch network {
	case NetworkBTC, NetworkLTC:
		return 8
	case NetworkETH, NetworkUSDTBEP20:
		return 18
	case NetworkUSDTTRC20:
		return 6
	default:
		return 0
	}
}
