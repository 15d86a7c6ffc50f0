package store

import "time"

// walletRecord is the GORM model backing the Wallet aggregate (spec §3).
type walletRecord struct {
	Address      string `gorm:"primaryKey;size:42"`
	FirstSeen    time.Time
	LastSeen     time.Time
	TotalTxCount int64
	VolumeIn     string `gorm:"size:96;not null;default:'0'"`
	VolumeOut    string `gorm:"size:96;not null;default:'0'"`
	Scored       bool
}

func (walletRecord) TableName() string { return "wallets" }

// transferRecord is the GORM model backing the append-only Raw transfer
// table. TxHash is unique so repeated indexing of the same transfer is an
// INSERT OR IGNORE no-op (spec §5 ordering, §8 invariant 6).
type transferRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	TxHash      string `gorm:"uniqueIndex;size:66;not null"`
	BlockNumber uint64 `gorm:"index;not null"`
	From        string `gorm:"index;size:42;not null"`
	To          string `gorm:"index;size:42;not null"`
	Amount      string `gorm:"size:96;not null"`
	Timestamp   time.Time `gorm:"index;not null"`
	Settlement  bool
}

func (transferRecord) TableName() string { return "transfers" }

// relationshipRecord is the GORM model backing the undirected relationship
// edge, unique on the ordered pair (spec §3).
type relationshipRecord struct {
	WalletA       string `gorm:"primaryKey;size:42"`
	WalletB       string `gorm:"primaryKey;size:42"`
	TxCountAToB   int64
	TxCountBToA   int64
	VolumeAToB    string `gorm:"size:96;not null;default:'0'"`
	VolumeBToA    string `gorm:"size:96;not null;default:'0'"`
	FirstInteract time.Time
	LastInteract  time.Time
}

func (relationshipRecord) TableName() string { return "relationships" }

// scoreRecord is the GORM model backing the cached Score (spec §3).
type scoreRecord struct {
	Wallet              string `gorm:"primaryKey;size:42"`
	Composite           int
	ReliabilityScore    int
	ViabilityScore      int
	IdentityScore       int
	CapabilityScore     int
	BehaviourScore      int
	Tier                string `gorm:"size:16"`
	RawSnapshot         []byte
	ComputedAt          time.Time `gorm:"index"`
	ExpiresAt           time.Time `gorm:"index"`
	Confidence          float64
	Recommendation      string `gorm:"size:32"`
	ModelVersion        string `gorm:"size:32"`
	SybilFlag           bool
	SybilIndicators     string `gorm:"size:256"` // comma-joined tags
	GamingIndicators    string `gorm:"size:256"`
	IntegrityMultiplier float64
}

func (scoreRecord) TableName() string { return "scores" }

// scoreHistoryRecord is the GORM model backing the append-only,
// 50-row-bounded Score history (spec §3, §8 invariant 3).
type scoreHistoryRecord struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	Wallet       string `gorm:"index;size:42;not null"`
	Score        int
	ComputedAt   time.Time `gorm:"index"`
	Confidence   float64
	ModelVersion string `gorm:"size:32"`
}

func (scoreHistoryRecord) TableName() string { return "score_history" }

// indexerStateRecord is the generic key/value table backing Indexer state
// (spec §3/§6).
type indexerStateRecord struct {
	Key   string `gorm:"primaryKey;size:128"`
	Value string
}

func (indexerStateRecord) TableName() string { return "indexer_state" }

// outcomeRecord is the GORM model backing the Outcome entity (spec §3).
type outcomeRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Wallet    string    `gorm:"uniqueIndex:idx_outcome_wallet_query;size:42;not null"`
	QueryAt   time.Time `gorm:"uniqueIndex:idx_outcome_wallet_query"`
	Type      string    `gorm:"size:32"`
	MatchedAt time.Time
}

func (outcomeRecord) TableName() string { return "outcomes" }

// fraudReportRecord is the GORM model backing the Fraud report entity
// (spec §3). Invariant: at most 3 reports per (reporter, target) pair,
// enforced in the prepared-operation layer, not via a DB constraint.
type fraudReportRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	Target         string `gorm:"index;size:42;not null"`
	Reporter       string `gorm:"index;size:42;not null"`
	Reason         string `gorm:"size:64"`
	Details        string `gorm:"size:1000"`
	CreatedAt      time.Time `gorm:"index"`
	PenaltyApplied bool
}

func (fraudReportRecord) TableName() string { return "fraud_reports" }

// publicationRecord is the GORM model backing the Reputation publication
// entity (spec §3), unique on wallet.
type publicationRecord struct {
	Wallet             string `gorm:"primaryKey;size:42"`
	LastPublishedScore int
	ModelVersion       string `gorm:"size:32"`
	TxHash             string `gorm:"size:66"`
	PublishedAt        time.Time
}

func (publicationRecord) TableName() string { return "publications" }

// webhookRecord is the GORM model backing the Webhook subscription entity
// (spec §3). Auto-disables once ConsecutiveFailures >= 5.
type webhookRecord struct {
	ID                  string `gorm:"primaryKey;size:36"`
	Wallet              string `gorm:"index;size:42"`
	URL                 string
	Secret              string
	Events              string `gorm:"size:256"` // comma-joined
	Active              bool
	ConsecutiveFailures int
}

func (webhookRecord) TableName() string { return "webhooks" }

// webhookDeliveryRecord is the GORM model backing the Delivery entity
// (spec §3).
type webhookDeliveryRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	WebhookID   string `gorm:"index;size:36;not null"`
	EventType   string `gorm:"size:32"`
	Payload     []byte
	Attempt     int
	NextRetryAt *time.Time `gorm:"index"`
	StatusCode  int
	DeliveredAt *time.Time `gorm:"index"`
}

func (webhookDeliveryRecord) TableName() string { return "webhook_deliveries" }

// allModels is passed to AutoMigrate, mirroring the teacher's single-call
// db.AutoMigrate(&AssetSnapshotRecord{}) pattern (internal/db/transaction_recorder.go)
// generalized to this store's full schema.
var allModels = []any{
	&walletRecord{},
	&transferRecord{},
	&relationshipRecord{},
	&scoreRecord{},
	&scoreHistoryRecord{},
	&indexerStateRecord{},
	&outcomeRecord{},
	&fraudReportRecord{},
	&publicationRecord{},
	&webhookRecord{},
	&webhookDeliveryRecord{},
	&queryLogRecord{},
}
