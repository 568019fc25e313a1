package dto

type AdminLoginRequest struct {
	APIKey         string `json:"api_key"`
	TelegramUserID int64  `json:"telegram_user_id"`
}

type CreateDealRequest struct {
	CreatorUserID int64  `json:"creator_user_id"`
	Role          string `json:"role"` // buyer / seller
}

type SetAddressRequest struct {
	UserID  int64  `json:"user_id"`
	Role    string `json:"role"`
	Address string `json:"address"`
	Network string `json:"network,omitempty"` // required only to pick USDT-BEP20 over ETH
}

type GenerateEscrowRequest struct {
	ActorUserID int64 `json:"actor_user_id"`
}

type DisputeRequest struct {
	ActorUserID int64  `json:"actor_user_id"`
	Reason      string `json:"reason,omitempty"`
}

type FreezeRequest struct {
	Frozen bool `json:"frozen"`
}

type SetBannedRequest struct {
	Banned bool `json:"banned"`
}

type SetModeratorRequest struct {
	Moderator bool `json:"moderator"`
}
