package scorer

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/llm"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

func TestInSkipSet(t *testing.T) {
	set := []string{"debug", "info"}
	if !inSkipSet("debug", set) {
		t.Error("expected debug to be in the skip set")
	}
	if inSkipSet("critical", set) {
		t.Error("critical should not be in the skip set")
	}
}

func TestNonZeroRowsDropsZeroScores(t *testing.T) {
	v := criteria.Vector{0.5, 0, 0.3, 0, 0, 0}
	rows := nonZeroRows("ev1", v)
	if len(rows) != 2 {
		t.Fatalf("nonZeroRows() returned %d rows, want 2 (I2: zero scores never persisted)", len(rows))
	}
	for _, r := range rows {
		if r.Score == 0 {
			t.Error("nonZeroRows() must never include a zero score")
		}
	}
}

func TestCacheFreshRespectsTTL(t *testing.T) {
	now := time.Now()
	recent := now.Add(-5 * time.Minute)
	scores := [6]float64{0.1, 0, 0, 0, 0, 0}
	tpl := &models.MessageTemplate{LastScoredAt: &recent, CachedScores: &scores}

	if !cacheFresh(tpl, 10, now) {
		t.Error("a template scored 5 minutes ago with a 10-minute TTL should be fresh")
	}
	if cacheFresh(tpl, 1, now) {
		t.Error("a template scored 5 minutes ago with a 1-minute TTL should be stale")
	}
}

func TestCacheFreshNoPriorScore(t *testing.T) {
	tpl := &models.MessageTemplate{}
	if cacheFresh(tpl, 10, time.Now()) {
		t.Error("a template with no prior score can never be fresh")
	}
}

func TestMatchesNormalBehaviorMessageOnly(t *testing.T) {
	templates := []models.NormalBehaviorTemplate{{MessagePattern: `^heartbeat ok$`}}
	ev := models.Event{Message: "heartbeat ok"}
	if !matchesNormalBehavior(ev, templates) {
		t.Error("expected message pattern match")
	}
	ev.Message = "heartbeat failed"
	if matchesNormalBehavior(ev, templates) {
		t.Error("non-matching message should not match")
	}
}

func TestMatchesNormalBehaviorHostConstraint(t *testing.T) {
	host := `^web\d+$`
	templates := []models.NormalBehaviorTemplate{{MessagePattern: `.*`, HostPattern: &host}}
	ev := models.Event{Message: "anything", Host: "web1"}
	if !matchesNormalBehavior(ev, templates) {
		t.Error("expected host pattern to match web1")
	}
	ev.Host = "db1"
	if matchesNormalBehavior(ev, templates) {
		t.Error("host pattern should not match db1")
	}
}

func TestChunkItemsSplitsEvenly(t *testing.T) {
	items := make([]llm.ScoringItem, 5)
	chunks := chunkItems(items, 2)
	if len(chunks) != 3 {
		t.Fatalf("chunkItems() returned %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[2]) != 1 {
		t.Errorf("chunkItems() sizes = %d/%d/%d, want 2/2/1", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkItemsZeroSizeIsOneChunk(t *testing.T) {
	items := make([]llm.ScoringItem, 4)
	chunks := chunkItems(items, 0)
	if len(chunks) != 1 || len(chunks[0]) != 4 {
		t.Error("chunkItems() with size<=0 should return everything in one chunk")
	}
}

func TestUniformVectorFillsAllCriteria(t *testing.T) {
	v := uniformVector(0.4)
	for i, val := range v {
		if val != 0.4 {
			t.Errorf("uniformVector()[%d] = %v, want 0.4", i, val)
		}
	}
}
