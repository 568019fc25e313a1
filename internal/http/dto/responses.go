package dto

type AuthResponse struct {
	Token string `json:"token"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type EscrowInfoResponse struct {
	EscrowCode    string `json:"escrow_code"`
	Network       string `json:"network"`
	EscrowAddress string `json:"escrow_address"`
	Status        string `json:"status"`
	// Confirmations shown to users before a deposit is treated as final.
	RequiredConfirmations int `json:"required_confirmations"`
}

type StatsResponse struct {
	GroupsTotal     int    `json:"groups_total"`
	GroupsAvailable int    `json:"groups_available"`
	GroupsOccupied  int    `json:"groups_occupied"`
	GroupsCooldown  int    `json:"groups_cooldown"`
	ActiveDeals     int    `json:"active_deals"`
	CompletedDeals  int    `json:"completed_deals"`
	DisputedDeals   int    `json:"disputed_deals"`
	TotalVolumeUSD  string `json:"total_volume_usd"`
}
