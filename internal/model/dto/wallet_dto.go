package dto

// WalletSummary 钱包总览：总余额 + 各池明细
type WalletSummary struct {
	Balance       int64               `json:"balance"`
	Purchased     int64               `json:"purchased"`
	Subscriptions []*SubscriptionInfo `json:"subscriptions"`
}

type SubscriptionInfo struct {
	ID               int64  `json:"id"`
	PackageID        string `json:"package_id"`
	DailyCredits     int64  `json:"daily_credits"`
	DailyRemaining   int64  `json:"daily_remaining"`
	MonthlyCredits   int64  `json:"monthly_credits"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	Status           string `json:"status"`
}

type TransactionItem struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	Reason        string `json:"reason"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

type RedeemResponse struct {
	Credits    int64 `json:"credits"`
	NewBalance int64 `json:"new_balance"`
}

type ConfirmSubscriptionRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}
