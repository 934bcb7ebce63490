package metrics

import (
	"testing"
)

func TestRecorder_RequestAggregates(t *testing.T) {
	r := NewRecorder()

	r.RecordRequest(100, true)
	r.RecordRequest(300, true)
	r.RecordRequest(50, false)

	snap := r.Snapshot()
	if snap.Requests.Total != 3 || snap.Requests.OK != 2 || snap.Requests.Failed != 1 {
		t.Errorf("unexpected request counts: %+v", snap.Requests)
	}
	if snap.Requests.Duration.MinMs != 50 || snap.Requests.Duration.MaxMs != 300 {
		t.Errorf("unexpected min/max: %+v", snap.Requests.Duration)
	}
	if snap.Requests.Duration.AvgMs != 150 {
		t.Errorf("expected avg 150, got %f", snap.Requests.Duration.AvgMs)
	}
}

func TestRecorder_PerToolStats(t *testing.T) {
	r := NewRecorder()

	r.RecordTool("list_agenda_events", 20, true)
	r.RecordTool("list_agenda_events", 40, true)
	r.RecordTool("send_email", 500, false)

	snap := r.Snapshot()
	if snap.Tools.Total != 3 || snap.Tools.Failed != 1 {
		t.Errorf("unexpected tool counts: %+v", snap.Tools)
	}
	agenda, ok := snap.Tools.PerTool["list_agenda_events"]
	if !ok || agenda.Count != 2 || agenda.AvgMs != 30 {
		t.Errorf("unexpected per-tool stats: %+v", agenda)
	}
}

func TestRecorder_CacheHitRate(t *testing.T) {
	r := NewRecorder()

	r.RecordCache(true)
	r.RecordCache(true)
	r.RecordCache(false)
	r.RecordCacheEviction()
	r.SetCacheSize(2)

	snap := r.Snapshot()
	c := snap.EmbeddingCache
	if c.Hits != 2 || c.Misses != 1 || c.Evictions != 1 || c.Size != 2 {
		t.Errorf("unexpected cache stats: %+v", c)
	}
	if c.HitRate < 0.66 || c.HitRate > 0.67 {
		t.Errorf("unexpected hit rate: %f", c.HitRate)
	}
}

func TestRecorder_VoicePhases(t *testing.T) {
	r := NewRecorder()

	r.RecordVoicePhase("stt", 180)
	r.RecordVoicePhase("agent", 900)
	r.RecordVoicePhase("tts", 400)
	r.RecordVoicePhase("end_to_end", 1500)

	snap := r.Snapshot()
	for _, phase := range []string{"stt", "agent", "tts", "end_to_end"} {
		if _, ok := snap.Voice[phase]; !ok {
			t.Errorf("missing voice phase %s", phase)
		}
	}
}

func TestRecorder_EmptySnapshot(t *testing.T) {
	snap := NewRecorder().Snapshot()
	if snap.Requests.Total != 0 {
		t.Error("fresh recorder should be zeroed")
	}
	if snap.EmbeddingCache.HitRate != 0 {
		t.Error("hit rate with no traffic should be 0")
	}
}

func TestRecorder_StageStats(t *testing.T) {
	r := NewRecorder()

	r.RecordStage("intent", 5)
	r.RecordStage("rag", 120)
	r.RecordStage("rag", 80)

	snap := r.Snapshot()
	rag, ok := snap.Stages["rag"]
	if !ok || rag.Count != 2 || rag.AvgMs != 100 {
		t.Errorf("unexpected rag stage stats: %+v", rag)
	}
}
