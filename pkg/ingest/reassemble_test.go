package ingest

import (
	"testing"

	"github.com/codeready-toolchain/sentinel/pkg/models"
)

func TestReassemblerMergesSequentialContinuations(t *testing.T) {
	r := NewReassembler()
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[42-1] statement: SELECT 1"})
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[42-2] DETAIL: more context"})
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[42-3] HINT: final line"})

	out := r.Flush()
	if len(out) != 1 {
		t.Fatalf("Flush() returned %d records, want 1 merged record", len(out))
	}
	msg, _ := ResolveMessage(out[0])
	want := "statement: SELECT 1\nDETAIL: more context\nHINT: final line"
	if msg != want {
		t.Errorf("merged message = %q, want %q", msg, want)
	}
}

func TestReassemblerDoesNotMergeDifferentSessions(t *testing.T) {
	r := NewReassembler()
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[1-1] first session head"})
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[2-1] second session head"})

	out := r.Flush()
	if len(out) != 2 {
		t.Fatalf("Flush() returned %d records, want 2 distinct heads", len(out))
	}
}

func TestReassemblerOrphanContinuationPassesThroughWithMarkerStripped(t *testing.T) {
	r := NewReassembler()
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[99-3] out of sequence, no head seen"})

	out := r.Flush()
	if len(out) != 1 {
		t.Fatalf("Flush() returned %d records, want 1 orphan", len(out))
	}
	msg, _ := ResolveMessage(out[0])
	if msg != "out of sequence, no head seen" {
		t.Errorf("orphan message = %q, want marker stripped", msg)
	}
}

func TestReassemblerSkippedIndexBreaksSequence(t *testing.T) {
	r := NewReassembler()
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[7-1] head line"})
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[7-3] skipped index 2"})

	out := r.Flush()
	if len(out) != 2 {
		t.Fatalf("Flush() returned %d records, want head and orphan kept separate", len(out))
	}
	headMsg, _ := ResolveMessage(out[0])
	if headMsg != "head line" {
		t.Errorf("head message = %q, want unmerged", headMsg)
	}
}

func TestReassemblerNonContinuationPassesThroughUnchanged(t *testing.T) {
	r := NewReassembler()
	r.Feed(models.RawEvent{"message": "ordinary single-line event"})

	out := r.Flush()
	if len(out) != 1 {
		t.Fatalf("Flush() returned %d records, want 1", len(out))
	}
	msg, _ := ResolveMessage(out[0])
	if msg != "ordinary single-line event" {
		t.Errorf("message = %q, want unchanged", msg)
	}
}

func TestFlushResetsStateForNextBatch(t *testing.T) {
	r := NewReassembler()
	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[1-1] head"})
	r.Flush()

	r.Feed(models.RawEvent{"host": "db1", "program": "postgres", "message": "[1-2] would-be continuation"})
	out := r.Flush()
	if len(out) != 1 {
		t.Fatalf("Flush() returned %d records, want 1 orphan from the fresh batch", len(out))
	}
	msg, _ := ResolveMessage(out[0])
	if msg != "would-be continuation" {
		t.Errorf("message = %q, want orphan from new batch, no stale pending state", msg)
	}
}

func TestDecodeEscapes(t *testing.T) {
	got := DecodeEscapes("col1#011col2#012next line")
	want := "col1\tcol2\nnext line"
	if got != want {
		t.Errorf("DecodeEscapes() = %q, want %q", got, want)
	}
}
