package entity

import "time"

// AdapterHealth はアダプターの稼働状況のスナップショットです。永続化はしません。
type AdapterHealth struct {
	AdapterName   string    `json:"adapterName"`
	Healthy       bool      `json:"healthy"`
	LatencyMs     int64     `json:"latencyMs"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	ErrorCount    int64     `json:"errorCount"`
	// Priority はオーケストレーターに登録された優先度です。
	Priority int `json:"priority,omitempty"`
}

// TierStats はキャッシュ層ごとのヒット統計です。
type TierStats struct {
	Available bool    `json:"available"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hitRate"`
	Keys      int64   `json:"keys"`
}

// CacheStats は両キャッシュ層の統計をまとめたものです。
type CacheStats struct {
	Hot     TierStats `json:"hot"`
	Durable TierStats `json:"durable"`
	// DurableRows はテーブルごとの行数です。
	DurableRows map[string]int64 `json:"durableRows,omitempty"`
}
