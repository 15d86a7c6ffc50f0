package types

import (
	"math/big"
	"time"
)

// Wallet mirrors the "Wallet" aggregate of spec §3.
type Wallet struct {
	Address      string    `json:"address"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	TotalTxCount int64     `json:"totalTxCount"`
	VolumeIn     *big.Rat  `json:"-"`
	VolumeOut    *big.Rat  `json:"-"`
	Scored       bool      `json:"scored"`
}

// Transfer mirrors the "Raw transfer" tuple of spec §3. Amount is
// fixed-point with 6 decimal places.
type Transfer struct {
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      *big.Rat  `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	Settlement  bool      `json:"settlement"`
}

// RelationshipEdge mirrors the undirected "Relationship edge" of spec §3.
// WalletA is always lexicographically less than WalletB.
type RelationshipEdge struct {
	WalletA       string    `json:"walletA"`
	WalletB       string    `json:"walletB"`
	TxCountAToB   int64     `json:"txCountAToB"`
	TxCountBToA   int64     `json:"txCountBToA"`
	VolumeAToB    *big.Rat  `json:"volumeAToB"`
	VolumeBToA    *big.Rat  `json:"volumeBToA"`
	FirstInteract time.Time `json:"firstInteraction"`
	LastInteract  time.Time `json:"lastInteraction"`
}

// WalletStats is the pre-rolled aggregate of spec §3.
type WalletStats struct {
	Wallet         string         `json:"wallet"`
	UniquePartners int64          `json:"uniquePartners"`
	Inflow24h      *big.Rat       `json:"-"`
	Outflow24h     *big.Rat       `json:"-"`
	Inflow7d       *big.Rat       `json:"-"`
	Outflow7d      *big.Rat       `json:"-"`
	Inflow30d      *big.Rat       `json:"-"`
	Outflow30d     *big.Rat       `json:"-"`
	IncomeBurnRatio float64       `json:"incomeBurnRatio"`
	Trend          TrendDirection `json:"trend"`
}

// Outcome mirrors the derived "Outcome" record of spec §3.
type Outcome struct {
	ID            string      `json:"id"`
	Wallet        string      `json:"wallet"`
	QueryAt       time.Time   `json:"queryAt"`
	Type          OutcomeType `json:"type"`
	MatchedAt     time.Time   `json:"matchedAt"`
}

// FraudReport mirrors spec §3's fraud report entity.
type FraudReport struct {
	ID             string    `json:"id"`
	Target         string    `json:"target"`
	Reporter       string    `json:"reporter"`
	Reason         string    `json:"reason"`
	Details        string    `json:"details"`
	CreatedAt      time.Time `json:"createdAt"`
	PenaltyApplied bool      `json:"penaltyApplied"`
}

// ReputationPublication mirrors spec §3's publication entity.
type ReputationPublication struct {
	Wallet            string    `json:"wallet"`
	LastPublishedScore int      `json:"lastPublishedScore"`
	ModelVersion      string    `json:"modelVersion"`
	TxHash            string    `json:"txHash"`
	PublishedAt       time.Time `json:"publishedAt"`
}

// Webhook mirrors spec §3's webhook subscription entity.
type Webhook struct {
	ID                  string    `json:"id"`
	Wallet              string    `json:"wallet"`
	URL                 string    `json:"url"`
	Secret              string    `json:"-"`
	Events              []string  `json:"events"`
	Active              bool      `json:"active"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
}

// WebhookDelivery mirrors spec §3's delivery entity.
type WebhookDelivery struct {
	ID          string     `json:"id"`
	WebhookID   string     `json:"webhookId"`
	EventType   string     `json:"eventType"`
	Payload     []byte     `json:"payload"`
	Attempt     int        `json:"attempt"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
	StatusCode  int        `json:"statusCode,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}
