// Package ingest turns raw event payloads (§6.1) into normalised
// models.Event rows: multiline reassembly, escape decoding, severity
// enrichment, and the normalized_hash used for write-time dedup (§4.1).
package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// continuationRe matches PostgreSQL-style continuation headers of the
// form "[N-K] body", where N is the session line number and K is the
// continuation index (1 = head).
var continuationRe = regexp.MustCompile(`^\s*\[(\d+)-(\d+)\]\s*`)

type continuationKey struct {
	host    string
	program string
	session int
}

type groupState struct {
	idx   int // index into Reassembler.out
	nextK int // next continuation index expected for this group
}

// Reassembler merges PostgreSQL-style bracketed continuation records
// ("[N-K] body") sharing (host, program, sessionLine) and arriving with
// strictly sequential K = 2, 3, … into their head record's message
// (§4.1 "Multiline reassembly"). One Reassembler is scoped to a single
// ingest batch: Feed every record in arrival order, then Flush to
// collect the reassembled batch.
type Reassembler struct {
	pending map[continuationKey]*groupState
	out     []models.RawEvent
}

// NewReassembler returns a reassembler with no pending continuations.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[continuationKey]*groupState)}
}

// Feed processes one raw record, in arrival order. A non-continuation
// record, or a head record ("[N-1] body"), is appended to the output
// batch immediately (its message stripped of the marker for a head).
// A continuation record whose (host, program, N) matches a pending
// head and whose K is exactly that head's next expected index is
// merged into the head's message, joined with "\n". An orphan
// continuation — no matching pending head, or a K that breaks the
// sequence — is appended standalone with the marker stripped, per
// §4.1 "orphan continuations pass through with marker stripped".
func (r *Reassembler) Feed(raw models.RawEvent) {
	msg, ok := ResolveMessage(raw)
	if !ok {
		r.out = append(r.out, raw)
		return
	}

	m := continuationRe.FindStringSubmatch(msg)
	if m == nil {
		r.out = append(r.out, raw)
		return
	}

	n, nErr := strconv.Atoi(m[1])
	k, kErr := strconv.Atoi(m[2])
	body := continuationRe.ReplaceAllString(msg, "")
	if nErr != nil || kErr != nil {
		r.out = append(r.out, setMessage(raw, body))
		return
	}

	key := continuationKey{host: stringField(raw, "host"), program: stringField(raw, "program"), session: n}

	if k == 1 {
		r.out = append(r.out, setMessage(raw, body))
		r.pending[key] = &groupState{idx: len(r.out) - 1, nextK: 2}
		return
	}

	g, exists := r.pending[key]
	if !exists || g.nextK != k {
		r.out = append(r.out, setMessage(raw, body))
		return
	}

	prevMsg, _ := ResolveMessage(r.out[g.idx])
	r.out[g.idx] = setMessage(r.out[g.idx], prevMsg+"\n"+body)
	g.nextK++
}

// Flush returns every record fed so far, with completed continuation
// groups merged into their head's message, and resets the Reassembler
// for the next batch. A head whose later continuations never arrived
// is returned with whatever partial body it accumulated.
func (r *Reassembler) Flush() []models.RawEvent {
	out := r.out
	r.out = nil
	r.pending = make(map[continuationKey]*groupState)
	return out
}

func stringField(raw models.RawEvent, key string) string {
	s, _ := raw[key].(string)
	return s
}

// setMessage returns a shallow copy of raw with its canonical
// "message" key set, leaving every other field untouched.
func setMessage(raw models.RawEvent, message string) models.RawEvent {
	clone := make(models.RawEvent, len(raw)+1)
	for k, v := range raw {
		clone[k] = v
	}
	clone["message"] = message
	return clone
}

var escapeReplacer = strings.NewReplacer(
	"#011", "\t",
	"#012", "\n",
)

// DecodeEscapes expands the octal-style #NNN escapes PostgreSQL emits
// for tabs and newlines inside single log fields (§4.1).
func DecodeEscapes(s string) string {
	return escapeReplacer.Replace(s)
}
