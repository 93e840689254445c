package models

import (
	"time"

	"gorm.io/gorm"
)

// ScanRun records one full arbitrage scan for auditing
type ScanRun struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	StartedAt      time.Time         `json:"started_at" gorm:"index;not null"`
	FinishedAt     time.Time         `json:"finished_at"`
	Status         string            `json:"status" gorm:"index"` // completed, failed
	Error          string            `json:"error"`
	CandidateCount int               `json:"candidate_count"`
	FilteredCount  int               `json:"filtered_count"`
	ArbitrageCount int               `json:"arbitrage_count"`
	UnknownCount   int               `json:"unknown_count"`
	GemPriceCents  int               `json:"gem_price_cents"`
	Authenticated  bool              `json:"authenticated"`
	OnlyCrafted    bool              `json:"only_crafted"`
	AskPreCheck    bool              `json:"ask_pre_check"`
	Records        []ArbitrageRecord `json:"records" gorm:"foreignKey:ScanRunID"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `gorm:"index"`
}

// ArbitrageRecord stores a single profitable finding from a scan
type ArbitrageRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ScanRunID      uint      `json:"scan_run_id" gorm:"index;not null"`
	ListingHash    string    `json:"listing_hash" gorm:"index;not null"`
	Name           string    `json:"name"`
	ProfitCents    int       `json:"profit_cents" gorm:"index"`
	BidCents       int       `json:"bid_cents"`
	AskCents       int       `json:"ask_cents"`
	BidVolume      int       `json:"bid_volume"`
	AskVolume      int       `json:"ask_volume"`
	CraftCostGems  int       `json:"craft_cost_gems"`
	CraftCostCents int       `json:"craft_cost_cents"`
	NetSellCents   int       `json:"net_sell_cents"`
	Marketable     bool      `json:"marketable"`
	CreatedAt      time.Time `json:"created_at"`
}

// GemPriceSample tracks the observed sack-of-gems ask over time
type GemPriceSample struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	CentsPerSack int       `json:"cents_per_sack" gorm:"not null"`
	Source       string    `json:"source" gorm:"default:'market'"` // market, override, floor
	ObservedAt   time.Time `json:"observed_at" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
}
