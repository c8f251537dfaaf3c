// Package history holds the append-only record of lag samples.
//
// A Record is an ordered log of Entries. Entries are immutable once appended and
// carry a strictly increasing sequence number; the only mutation is Append.
package history

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Entry is one sampling pass.
//
// FQRNs maps repository -> mirror -> published timestamp (decimal string) and only
// lists repositories that had at least one mirror answer. Failed lists the
// repositories that were sampled in this pass but got no answer at all, so that
// "not sampled" and "sampled, nothing came back" stay distinguishable.
type Entry struct {
	Seq        uint64                       `json:"seq"`
	SampleTime int64                        `json:"sample_time"`
	FQRNs      map[string]map[string]string `json:"fqrns"`
	Failed     []string                     `json:"failed,omitempty"`
}

func (e Entry) Time() time.Time { return time.Unix(e.SampleTime, 0).UTC() }

// Mirrors returns the mirror -> timestamp map for fqrn, if the entry has it.
func (e Entry) Mirrors(fqrn string) (map[string]string, bool) {
	m, ok := e.FQRNs[fqrn]
	return m, ok
}

func (e Entry) clone() Entry {
	out := Entry{Seq: e.Seq, SampleTime: e.SampleTime, FQRNs: make(map[string]map[string]string, len(e.FQRNs))}
	for repo, mirrors := range e.FQRNs {
		out.FQRNs[repo] = maps.Clone(mirrors)
	}
	if len(e.Failed) > 0 {
		out.Failed = slices.Clone(e.Failed)
	}
	return out
}

type Record struct {
	entries    []Entry
	quarantine []json.RawMessage
}

func NewRecord() *Record { return &Record{} }

func (r *Record) Len() int { return len(r.entries) }

// At returns the i-th entry. The maps are shared with the record and must not be modified.
func (r *Record) At(i int) Entry { return r.entries[i] }

// Entries returns the entries in append order.
func (r *Record) Entries() []Entry { return slices.Clone(r.entries) }

func (r *Record) Last() (Entry, bool) {
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Quarantined returns raw entries that failed validation on decode. They are
// kept verbatim and written back unchanged.
func (r *Record) Quarantined() []json.RawMessage { return slices.Clone(r.quarantine) }

// NextSeq is the sequence number the next appended entry will get.
func (r *Record) NextSeq() uint64 {
	last, ok := r.Last()
	if !ok {
		return 1
	}
	return last.Seq + 1
}

// Append adds one entry at the end of the log and returns it.
func (r *Record) Append(sampleTime int64, fqrns map[string]map[string]string, failed []string) (Entry, error) {
	if sampleTime <= 0 {
		return Entry{}, fmt.Errorf("sample time must be positive, got %d", sampleTime)
	}
	if len(fqrns) == 0 {
		return Entry{}, fmt.Errorf("refusing to append an entry without repositories")
	}
	for repo, mirrors := range fqrns {
		if len(mirrors) == 0 {
			return Entry{}, fmt.Errorf("repository %q has no mirror samples", repo)
		}
	}

	e := Entry{
		Seq:        r.NextSeq(),
		SampleTime: sampleTime,
		FQRNs:      fqrns,
		Failed:     failed,
	}.clone()
	slices.Sort(e.Failed)

	r.entries = append(r.entries, e)
	return e, nil
}

// Clone returns a record sharing no mutable state with r.
func (r *Record) Clone() *Record {
	out := &Record{
		entries:    make([]Entry, len(r.entries)),
		quarantine: slices.Clone(r.quarantine),
	}
	for i, e := range r.entries {
		out.entries[i] = e.clone()
	}
	return out
}

// Accumulate returns prev plus one new entry; prev is left untouched and may be nil
// (first run).
func Accumulate(prev *Record, sampleTime time.Time, fqrns map[string]map[string]string, failed []string) (*Record, Entry, error) {
	next := NewRecord()
	if prev != nil {
		next = prev.Clone()
	}
	e, err := next.Append(sampleTime.Unix(), fqrns, failed)
	if err != nil {
		return nil, Entry{}, err
	}
	return next, e, nil
}
