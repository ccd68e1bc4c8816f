package domain

import "time"

// Opportunity is a profitable round trip published to feed consumers. It is
// never mutated after creation.
type Opportunity struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"ts"`
	ChainID           int64     `json:"chainId"`
	Chain             string    `json:"chain"`
	ExpectedProfitUSD float64   `json:"expectedProfitUsd"`
	// NetProfitScaled is the exact fixed-point result (USD * 1e6) as a
	// decimal string, so consumers can avoid float rounding.
	NetProfitScaled string `json:"netProfitScaled"`
	LatencyMs       int64  `json:"latencyMs"`
}

// ScanStatus is a snapshot of the scheduler's progress.
type ScanStatus struct {
	Mode          string    `json:"mode"`
	Running       bool      `json:"running"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Cycles        int64     `json:"cycles"`
	FailedCycles  int64     `json:"failedCycles"`
	LastError     string    `json:"lastError,omitempty"`
	Opportunities int64     `json:"opportunities"`
}
