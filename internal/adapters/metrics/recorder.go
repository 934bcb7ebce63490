package metrics

import (
	"sync"
)

// durationStats aggregates observed durations in milliseconds.
type durationStats struct {
	Count int64   `json:"count"`
	Total float64 `json:"total_ms"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
}

func (d *durationStats) observe(ms float64) {
	if d.Count == 0 || ms < d.Min {
		d.Min = ms
	}
	if ms > d.Max {
		d.Max = ms
	}
	d.Count++
	d.Total += ms
}

// AvgMs is included in snapshots for convenience.
func (d durationStats) avg() float64 {
	if d.Count == 0 {
		return 0
	}
	return d.Total / float64(d.Count)
}

type durationSnapshot struct {
	Count int64   `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
}

func (d durationStats) snapshot() durationSnapshot {
	return durationSnapshot{Count: d.Count, AvgMs: d.avg(), MinMs: d.Min, MaxMs: d.Max}
}

// Recorder implements ports.MetricsRecorder. It feeds the Prometheus
// collectors and keeps an in-memory aggregate for the JSON summary
// endpoint.
type Recorder struct {
	mu sync.Mutex

	requests       durationStats
	requestsOK     int64
	requestsFailed int64

	stages map[string]*durationStats

	tools       map[string]*durationStats
	toolsOK     int64
	toolsFailed int64

	cacheHits      int64
	cacheMisses    int64
	cacheEvictions int64
	cacheSize      int

	voice map[string]*durationStats
}

func NewRecorder() *Recorder {
	return &Recorder{
		stages: make(map[string]*durationStats),
		tools:  make(map[string]*durationStats),
		voice:  make(map[string]*durationStats),
	}
}

func (r *Recorder) RecordRequest(durationMs float64, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(status).Inc()
	RequestDuration.Observe(durationMs / 1000)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests.observe(durationMs)
	if success {
		r.requestsOK++
	} else {
		r.requestsFailed++
	}
}

func (r *Recorder) RecordStage(stage string, durationMs float64) {
	StageDuration.WithLabelValues(stage).Observe(durationMs / 1000)

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.stages[stage]
	if !ok {
		stats = &durationStats{}
		r.stages[stage] = stats
	}
	stats.observe(durationMs)
}

func (r *Recorder) RecordTool(name string, durationMs float64, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	ToolInvocationsTotal.WithLabelValues(name, status).Inc()
	ToolDuration.WithLabelValues(name).Observe(durationMs / 1000)

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.tools[name]
	if !ok {
		stats = &durationStats{}
		r.tools[name] = stats
	}
	stats.observe(durationMs)
	if success {
		r.toolsOK++
	} else {
		r.toolsFailed++
	}
}

func (r *Recorder) RecordCache(hit bool) {
	if hit {
		EmbeddingCacheHits.Inc()
	} else {
		EmbeddingCacheMisses.Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
}

func (r *Recorder) RecordCacheEviction() {
	EmbeddingCacheEvictions.Inc()

	r.mu.Lock()
	r.cacheEvictions++
	r.mu.Unlock()
}

func (r *Recorder) SetCacheSize(n int) {
	EmbeddingCacheSize.Set(float64(n))

	r.mu.Lock()
	r.cacheSize = n
	r.mu.Unlock()
}

func (r *Recorder) RecordVoicePhase(phase string, durationMs float64) {
	VoicePhaseDuration.WithLabelValues(phase).Observe(durationMs / 1000)

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.voice[phase]
	if !ok {
		stats = &durationStats{}
		r.voice[phase] = stats
	}
	stats.observe(durationMs)
}

// Snapshot is the JSON shape served by GET /metrics/summary.
type Snapshot struct {
	Requests struct {
		Total    int64            `json:"total"`
		OK       int64            `json:"ok"`
		Failed   int64            `json:"failed"`
		Duration durationSnapshot `json:"duration"`
	} `json:"requests"`
	Stages map[string]durationSnapshot `json:"stages"`
	Tools  struct {
		Total   int64                       `json:"total"`
		OK      int64                       `json:"ok"`
		Failed  int64                       `json:"failed"`
		PerTool map[string]durationSnapshot `json:"per_tool"`
	} `json:"tools"`
	EmbeddingCache struct {
		Hits      int64   `json:"hits"`
		Misses    int64   `json:"misses"`
		Evictions int64   `json:"evictions"`
		Size      int     `json:"size"`
		HitRate   float64 `json:"hit_rate"`
	} `json:"embedding_cache"`
	Voice map[string]durationSnapshot `json:"voice"`
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	snap.Requests.Total = r.requestsOK + r.requestsFailed
	snap.Requests.OK = r.requestsOK
	snap.Requests.Failed = r.requestsFailed
	snap.Requests.Duration = r.requests.snapshot()

	snap.Stages = make(map[string]durationSnapshot, len(r.stages))
	for stage, stats := range r.stages {
		snap.Stages[stage] = stats.snapshot()
	}

	snap.Tools.OK = r.toolsOK
	snap.Tools.Failed = r.toolsFailed
	snap.Tools.Total = r.toolsOK + r.toolsFailed
	snap.Tools.PerTool = make(map[string]durationSnapshot, len(r.tools))
	for name, stats := range r.tools {
		snap.Tools.PerTool[name] = stats.snapshot()
	}

	snap.EmbeddingCache.Hits = r.cacheHits
	snap.EmbeddingCache.Misses = r.cacheMisses
	snap.EmbeddingCache.Evictions = r.cacheEvictions
	snap.EmbeddingCache.Size = r.cacheSize
	if total := r.cacheHits + r.cacheMisses; total > 0 {
		snap.EmbeddingCache.HitRate = float64(r.cacheHits) / float64(total)
	}

	snap.Voice = make(map[string]durationSnapshot, len(r.voice))
	for phase, stats := range r.voice {
		snap.Voice[phase] = stats.snapshot()
	}

	return snap
}
