// Package configs loads the scoring daemon's configuration: a YAML file for
// tunable knobs (indexer chunking, scheduler periods, calibration caps) and
// environment variables for secrets and deployment-specific addresses,
// mirroring the teacher's split between configs/config.yml and main.go's
// os.Getenv("ENC_PK")/os.Getenv("KEY") handling.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onchainscore/scoringcore/internal/indexer"
)

// Config is the entire YAML-backed configuration structure, translated into
// typed sub-configs via the To*Config methods below, following the
// teacher's configs.Config.ToBlackholeConfigs/ToStrategyConfig pattern.
type Config struct {
	RPC            string             `yaml:"rpc"`
	StorePath      string             `yaml:"storePath"`
	Port           int                `yaml:"port"`
	Token          TokenYAML          `yaml:"token"`
	Micropayment   MicropaymentYAML   `yaml:"micropayment"`
	GenericIndexer GenericIndexerYAML `yaml:"genericIndexer"`
	Scoring        ScoringYAML        `yaml:"scoring"`
	Scheduler      SchedulerYAML      `yaml:"scheduler"`
	Calibration    CalibrationYAML    `yaml:"calibration"`
	Publisher      PublisherYAML      `yaml:"publisher"`
	Webhook        WebhookYAML        `yaml:"webhook"`
	RateLimit      RateLimitYAML      `yaml:"rateLimit"`
}

type TokenYAML struct {
	Address      string `yaml:"address"`
	GenesisBlock uint64 `yaml:"genesisBlock"`
	GenesisTime  string `yaml:"genesisTime"` // RFC3339
}

type MicropaymentYAML struct {
	AuthEventAddress    string  `yaml:"authEventAddress"`
	AuthEventTopic0     string  `yaml:"authEventTopic0"`
	AmountCeilingUSD    float64 `yaml:"amountCeilingUsd"`
	AuthorizationThresh int     `yaml:"authorizationThreshold"`
	ChunkSize           uint64  `yaml:"chunkSize"`
	MinChunkSize        uint64  `yaml:"minChunkSize"`
	BackfillOffset      uint64  `yaml:"backfillOffset"`
	CatchUpCeiling      uint64  `yaml:"catchUpCeiling"`
	PollIntervalSec     int     `yaml:"pollIntervalSec"`
	RetryDelaySec       int     `yaml:"retryDelaySec"`
}

type GenericIndexerYAML struct {
	ChunkSize        uint64 `yaml:"chunkSize"`
	MinChunkSize     uint64 `yaml:"minChunkSize"`
	BackfillOffset   uint64 `yaml:"backfillOffset"`
	CatchUpCeiling   uint64 `yaml:"catchUpCeiling"`
	PollIntervalSec  int    `yaml:"pollIntervalSec"`
	RetryDelaySec    int    `yaml:"retryDelaySec"`
	InterCallDelayMs int    `yaml:"interCallDelayMs"`
}

type ScoringYAML struct {
	TimeoutSec           int    `yaml:"timeoutSec"`
	TTLMinutes           int    `yaml:"ttlMinutes"`
	MaxConcurrentRefresh int    `yaml:"maxConcurrentRefresh"`
	MaxInFlightRefresh   int    `yaml:"maxInFlightRefresh"`
	ModelVersion         string `yaml:"modelVersion"`
}

type SchedulerYAML struct {
	ShutdownTimeoutSec int `yaml:"shutdownTimeoutSec"`
}

type CalibrationYAML struct {
	MinWalletsForPopulationStats int     `yaml:"minWalletsForPopulationStats"`
	BreakpointDriftRatio         float64 `yaml:"breakpointDriftRatio"`
	MinOutcomes                  int     `yaml:"minOutcomes"`
	MinNegativeOutcomes          int     `yaml:"minNegativeOutcomes"`
	WeightStepCap                float64 `yaml:"weightStepCap"`
	WeightTotalDriftCap          float64 `yaml:"weightTotalDriftCap"`
}

type PublisherYAML struct {
	MinConfidence     float64 `yaml:"minConfidence"`
	MinDelta          int     `yaml:"minDelta"`
	BatchLimit        int     `yaml:"batchLimit"`
	InterTxDelaySec   int     `yaml:"interTxDelaySec"`
	ConfirmTimeoutSec int     `yaml:"confirmTimeoutSec"`
	MinNativeBalance  string  `yaml:"minNativeBalance"` // wei, decimal string
	RegistryAddress   string  `yaml:"registryAddress"`
	ChainID           int64   `yaml:"chainId"`
}

type WebhookYAML struct {
	BatchSize          int   `yaml:"batchSize"`
	RetryBackoffSec    []int `yaml:"retryBackoffSec"`
	MaxAttempts        int   `yaml:"maxAttempts"`
	DeliveryTimeoutSec int   `yaml:"deliveryTimeoutSec"`
}

type RateLimitYAML struct {
	FreeTierDailyLimit int `yaml:"freeTierDailyLimit"`
}

// LoadConfig reads and parses the YAML config file at path, following the
// teacher's configs.LoadConfig(path string) shape.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StorePath == "" {
		c.StorePath = "data/scoring.db"
	}
	if c.Scoring.TimeoutSec == 0 {
		c.Scoring.TimeoutSec = 75
	}
	if c.Scoring.TTLMinutes == 0 {
		c.Scoring.TTLMinutes = 60
	}
	if c.Scoring.MaxConcurrentRefresh == 0 {
		c.Scoring.MaxConcurrentRefresh = 5
	}
	if c.Scoring.ModelVersion == "" {
		c.Scoring.ModelVersion = "v1"
	}
	if c.Scheduler.ShutdownTimeoutSec == 0 {
		c.Scheduler.ShutdownTimeoutSec = 10
	}
	if c.Webhook.BatchSize == 0 {
		c.Webhook.BatchSize = 25
	}
	if len(c.Webhook.RetryBackoffSec) == 0 {
		c.Webhook.RetryBackoffSec = []int{60, 300}
	}
	if c.Webhook.MaxAttempts == 0 {
		c.Webhook.MaxAttempts = len(c.Webhook.RetryBackoffSec) + 1
	}
	if c.Webhook.DeliveryTimeoutSec == 0 {
		c.Webhook.DeliveryTimeoutSec = 10
	}
	if c.Publisher.BatchLimit == 0 {
		c.Publisher.BatchLimit = 20
	}
	if c.Publisher.ConfirmTimeoutSec == 0 {
		c.Publisher.ConfirmTimeoutSec = 60
	}
	if c.RateLimit.FreeTierDailyLimit == 0 {
		c.RateLimit.FreeTierDailyLimit = 10
	}
}

// ToMicropaymentConfig translates the YAML shape into indexer.MicropaymentConfig,
// resolving the facilitator address and precision-scaled amount ceiling.
func (c *Config) ToMicropaymentConfig(facilitatorAddress string) (indexer.MicropaymentConfig, error) {
	genesisTime, err := parseRFC3339OrZero(c.Token.GenesisTime)
	if err != nil {
		return indexer.MicropaymentConfig{}, fmt.Errorf("parse token genesis time: %w", err)
	}
	return indexer.MicropaymentConfig{
		TokenAddress:        c.Token.Address,
		AuthEventAddress:    c.Micropayment.AuthEventAddress,
		AuthEventTopic0:     c.Micropayment.AuthEventTopic0,
		FacilitatorAddress:  facilitatorAddress,
		AmountCeiling:       big.NewRat(int64(c.Micropayment.AmountCeilingUSD*1e6), 1e6),
		AuthorizationThresh: c.Micropayment.AuthorizationThresh,
		ChunkSize:           orDefaultU64(c.Micropayment.ChunkSize, 2000),
		MinChunkSize:        orDefaultU64(c.Micropayment.MinChunkSize, 100),
		BackfillOffset:      c.Micropayment.BackfillOffset,
		CatchUpCeiling:      c.Micropayment.CatchUpCeiling,
		PollInterval:        orDefaultSec(c.Micropayment.PollIntervalSec, 10),
		RetryDelay:          orDefaultSec(c.Micropayment.RetryDelaySec, 30),
		GenesisBlock:        c.Token.GenesisBlock,
		GenesisTime:         genesisTime,
	}, nil
}

// ToGenericIndexerConfig translates the YAML shape into indexer.GenericTransferConfig.
func (c *Config) ToGenericIndexerConfig() (indexer.GenericTransferConfig, error) {
	genesisTime, err := parseRFC3339OrZero(c.Token.GenesisTime)
	if err != nil {
		return indexer.GenericTransferConfig{}, fmt.Errorf("parse token genesis time: %w", err)
	}
	return indexer.GenericTransferConfig{
		TokenAddress:   c.Token.Address,
		ChunkSize:      orDefaultU64(c.GenericIndexer.ChunkSize, 500),
		MinChunkSize:   orDefaultU64(c.GenericIndexer.MinChunkSize, 50),
		BackfillOffset: c.GenericIndexer.BackfillOffset,
		CatchUpCeiling: c.GenericIndexer.CatchUpCeiling,
		PollInterval:   orDefaultSec(c.GenericIndexer.PollIntervalSec, 45),
		RetryDelay:     orDefaultSec(c.GenericIndexer.RetryDelaySec, 30),
		InterCallDelay: time.Duration(c.GenericIndexer.InterCallDelayMs) * time.Millisecond,
		GenesisBlock:   c.Token.GenesisBlock,
		GenesisTime:    genesisTime,
	}, nil
}

// EnvSecrets holds the deployment secrets read from the environment,
// mirroring main.go's ENC_PK/KEY pattern generalized to this daemon's
// admin key / facilitator / code-host token inputs (spec §6).
type EnvSecrets struct {
	AdminKey            string
	RPCURL              string
	FacilitatorURL      string
	FacilitatorAddress  string
	CodeHostToken       string
	PublisherPrivateKey string
}

// LoadEnvSecrets reads the environment-variable inputs spec §6 requires.
// In production (env != "development") AdminKey must be at least 32 chars.
func LoadEnvSecrets(env string) (EnvSecrets, error) {
	s := EnvSecrets{
		AdminKey:            os.Getenv("ADMIN_KEY"),
		RPCURL:              os.Getenv("RPC_URL"),
		FacilitatorURL:      os.Getenv("FACILITATOR_URL"),
		FacilitatorAddress:  os.Getenv("FACILITATOR_ADDRESS"),
		CodeHostToken:       os.Getenv("CODE_HOST_TOKEN"),
		PublisherPrivateKey: os.Getenv("PUBLISHER_PRIVATE_KEY"),
	}
	if env != "development" && len(s.AdminKey) < 32 {
		return EnvSecrets{}, fmt.Errorf("ADMIN_KEY must be at least 32 characters in production")
	}
	return s, nil
}

func parseRFC3339OrZero(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func orDefaultU64(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultSec(v, def int) time.Duration {
	if v == 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// MustParseInt parses a decimal environment value, returning def when raw
// is empty and panicking with a clear message on malformed input.
func MustParseInt(name, raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid integer for %s: %v", name, err))
	}
	return v
}
