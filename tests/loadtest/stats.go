package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// MismatchDetail records one response whose status code diverged from the
// CSV's expected_status column, for the final report's diagnostic dump.
type MismatchDetail struct {
	URL            string
	ExpectedStatus int
	ActualStatus   int
	RequestID      string
}

// GlobalStats is the rolling aggregate of every /proxy request this tool has
// issued. Unlike the render-gateway tool this was adapted from, the engine's
// Local Proxy has no cache/rendered/bypass response-source taxonomy to
// track: every response is just "did the origin answer, and how fast".
type GlobalStats struct {
	TotalRequests    int64
	Success2xx       int64
	Redirect3xx      int64
	ClientError4xx   int64
	ServerError5xx   int64
	NetworkErrors    int64
	TimeoutErrors    int64
	ConnectionErrors int64

	StatusMismatches int64
	Mismatches       []MismatchDetail
	mismatchMu       sync.Mutex

	TotalBytes int64

	ResponseTimes *hdrhistogram.Histogram
	histogramMu   sync.Mutex

	HostStats map[string]*HostStats
	mu        sync.RWMutex

	startTime     time.Time
	lastRPSCheck  time.Time
	lastRPSCount  int64
	currentRPS    float64
	lastBWCheck   time.Time
	lastBWBytes   int64
	currentBWRate float64

	activeRequests  *int64
	baseConcurrency int
}

type HostStats struct {
	TotalRequests    int64
	Success2xx       int64
	Redirect3xx      int64
	ClientError4xx   int64
	ServerError5xx   int64
	NetworkErrors    int64
	TimeoutErrors    int64
	ConnectionErrors int64

	StatusMismatches int64

	TotalBytes int64

	ResponseTimes *hdrhistogram.Histogram
	histogramMu   sync.Mutex
}

func NewGlobalStats() *GlobalStats {
	return &GlobalStats{
		ResponseTimes: hdrhistogram.New(1, 300000, 3),
		HostStats:     make(map[string]*HostStats),
		Mismatches:    make([]MismatchDetail, 0),
		startTime:     time.Now(),
		lastRPSCheck:  time.Now(),
		lastBWCheck:   time.Now(),
	}
}

func NewHostStats() *HostStats {
	return &HostStats{ResponseTimes: hdrhistogram.New(1, 300000, 3)}
}

func (gs *GlobalStats) RecordRequest(result *RequestResult) {
	atomic.AddInt64(&gs.TotalRequests, 1)

	if result.Success {
		gs.histogramMu.Lock()
		gs.ResponseTimes.RecordValue(result.Duration.Milliseconds())
		gs.histogramMu.Unlock()
		atomic.AddInt64(&gs.TotalBytes, int64(result.BytesReceived))

		switch {
		case result.StatusCode >= 200 && result.StatusCode < 300:
			atomic.AddInt64(&gs.Success2xx, 1)
		case result.StatusCode >= 300 && result.StatusCode < 400:
			atomic.AddInt64(&gs.Redirect3xx, 1)
		case result.StatusCode >= 400 && result.StatusCode < 500:
			atomic.AddInt64(&gs.ClientError4xx, 1)
		case result.StatusCode >= 500 && result.StatusCode < 600:
			atomic.AddInt64(&gs.ServerError5xx, 1)
		}

		if result.IsMismatch {
			atomic.AddInt64(&gs.StatusMismatches, 1)
			gs.mismatchMu.Lock()
			gs.Mismatches = append(gs.Mismatches, MismatchDetail{
				URL:            result.URL,
				ExpectedStatus: result.ExpectedStatus,
				ActualStatus:   result.StatusCode,
				RequestID:      result.RequestID,
			})
			gs.mismatchMu.Unlock()
		}
	} else {
		atomic.AddInt64(&gs.NetworkErrors, 1)
		switch result.Error {
		case "timeout":
			atomic.AddInt64(&gs.TimeoutErrors, 1)
		case "connection_refused":
			atomic.AddInt64(&gs.ConnectionErrors, 1)
		}
	}

	gs.recordHostStats(result)
}

func (gs *GlobalStats) recordHostStats(result *RequestResult) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	host := result.Host
	if host == "" {
		return
	}

	hostStats, exists := gs.HostStats[host]
	if !exists {
		hostStats = NewHostStats()
		gs.HostStats[host] = hostStats
	}

	atomic.AddInt64(&hostStats.TotalRequests, 1)

	if result.Success {
		hostStats.histogramMu.Lock()
		hostStats.ResponseTimes.RecordValue(result.Duration.Milliseconds())
		hostStats.histogramMu.Unlock()
		atomic.AddInt64(&hostStats.TotalBytes, int64(result.BytesReceived))

		switch {
		case result.StatusCode >= 200 && result.StatusCode < 300:
			atomic.AddInt64(&hostStats.Success2xx, 1)
		case result.StatusCode >= 300 && result.StatusCode < 400:
			atomic.AddInt64(&hostStats.Redirect3xx, 1)
		case result.StatusCode >= 400 && result.StatusCode < 500:
			atomic.AddInt64(&hostStats.ClientError4xx, 1)
		case result.StatusCode >= 500 && result.StatusCode < 600:
			atomic.AddInt64(&hostStats.ServerError5xx, 1)
		}

		if result.IsMismatch {
			atomic.AddInt64(&hostStats.StatusMismatches, 1)
		}
	} else {
		atomic.AddInt64(&hostStats.NetworkErrors, 1)
		switch result.Error {
		case "timeout":
			atomic.AddInt64(&hostStats.TimeoutErrors, 1)
		case "connection_refused":
			atomic.AddInt64(&hostStats.ConnectionErrors, 1)
		}
	}
}

func (gs *GlobalStats) UpdateRPS() {
	now := time.Now()
	elapsed := now.Sub(gs.lastRPSCheck).Seconds()
	if elapsed > 0 {
		currentCount := atomic.LoadInt64(&gs.TotalRequests)
		newRequests := currentCount - gs.lastRPSCount
		gs.currentRPS = float64(newRequests) / elapsed
		gs.lastRPSCheck = now
		gs.lastRPSCount = currentCount
	}
}

func (gs *GlobalStats) UpdateBandwidthRate() {
	now := time.Now()
	elapsed := now.Sub(gs.lastBWCheck).Seconds()
	if elapsed > 0 {
		currentBytes := atomic.LoadInt64(&gs.TotalBytes)
		newBytes := currentBytes - gs.lastBWBytes
		gs.currentBWRate = float64(newBytes) / elapsed
		gs.lastBWCheck = now
		gs.lastBWBytes = currentBytes
	}
}

func (gs *GlobalStats) GetCurrentRPS() float64 { return gs.currentRPS }

func (gs *GlobalStats) GetCurrentBWRate() float64 { return gs.currentBWRate }

func (gs *GlobalStats) GetAverageRPS(duration time.Duration) float64 {
	if duration.Seconds() == 0 {
		return 0.0
	}
	return float64(atomic.LoadInt64(&gs.TotalRequests)) / duration.Seconds()
}

func (gs *GlobalStats) SetActiveRequests(activeRequests *int64, baseConcurrency int) {
	gs.activeRequests = activeRequests
	gs.baseConcurrency = baseConcurrency
}

func (gs *GlobalStats) GetActiveRequests() int64 {
	if gs.activeRequests == nil {
		return 0
	}
	return atomic.LoadInt64(gs.activeRequests)
}
