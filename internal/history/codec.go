package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
)

// SchemaVersion is the schema written by Encode.
//
//	1: a bare JSON array of {"sample_time", "fqrns"} objects (read only).
//	2: {"schema": 2, "entries": [...], "quarantine": [...]} with per-entry "seq" and "failed".
const SchemaVersion = 2

type envelope struct {
	Schema     int               `json:"schema"`
	Entries    []json.RawMessage `json:"entries"`
	Quarantine []json.RawMessage `json:"quarantine,omitempty"`
}

// Decode parses a stored record. Individual entries that fail validation are
// quarantined instead of failing the load; only a document that is not a known
// schema at all yields errs.ErrMalformedRecord. Empty input is an empty record.
func Decode(data []byte) (*Record, error) {
	data = bytes.TrimSpace(data)
	rec := NewRecord()
	if len(data) == 0 {
		return rec, nil
	}

	var raw []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errs.New(errs.MalformedRecord, "decode schema 1", err)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, errs.New(errs.MalformedRecord, "decode envelope", err)
		}
		if env.Schema < 1 || env.Schema > SchemaVersion {
			return nil, errs.Newf(errs.MalformedRecord, "decode envelope", "unsupported schema %d", env.Schema)
		}
		raw = env.Entries
		rec.quarantine = append(rec.quarantine, env.Quarantine...)
	default:
		return nil, errs.Newf(errs.MalformedRecord, "decode", "unexpected leading byte %q", data[0])
	}

	for i, msg := range raw {
		e, err := decodeEntry(msg, rec.NextSeq())
		if err != nil {
			logger.Warn("record entry %d quarantined: %v", i, err)
			rec.quarantine = append(rec.quarantine, append(json.RawMessage(nil), msg...))
			continue
		}
		rec.entries = append(rec.entries, e)
	}
	return rec, nil
}

// wireEntry is Entry as stored, with mirror values left raw so that a number or
// any other non-string value costs one mirror sample instead of the whole entry.
type wireEntry struct {
	Seq        uint64                                `json:"seq"`
	SampleTime int64                                 `json:"sample_time"`
	FQRNs      map[string]map[string]json.RawMessage `json:"fqrns"`
	Failed     []string                              `json:"failed,omitempty"`
}

// mirrorValue returns a string value unquoted and anything else as its JSON text.
func mirrorValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// decodeEntry validates one entry. next is the sequence number an entry without
// one gets; an explicit seq must not go backwards.
func decodeEntry(msg json.RawMessage, next uint64) (Entry, error) {
	var w wireEntry
	dec := json.NewDecoder(bytes.NewReader(msg))
	if err := dec.Decode(&w); err != nil {
		return Entry{}, err
	}

	e := Entry{Seq: w.Seq, SampleTime: w.SampleTime, Failed: w.Failed}
	if w.FQRNs != nil {
		e.FQRNs = make(map[string]map[string]string, len(w.FQRNs))
		for repo, mirrors := range w.FQRNs {
			if mirrors == nil {
				e.FQRNs[repo] = nil
				continue
			}
			vals := make(map[string]string, len(mirrors))
			for mirror, raw := range mirrors {
				vals[mirror] = mirrorValue(raw)
			}
			e.FQRNs[repo] = vals
		}
	}
	if e.SampleTime <= 0 {
		return Entry{}, fmt.Errorf("missing or non-positive sample_time")
	}
	if len(e.FQRNs) == 0 {
		return Entry{}, fmt.Errorf("missing fqrns")
	}
	for repo, mirrors := range e.FQRNs {
		if mirrors == nil {
			return Entry{}, fmt.Errorf("repository %q has a null mirror map", repo)
		}
	}
	switch {
	case e.Seq == 0:
		e.Seq = next
	case e.Seq < next:
		return Entry{}, fmt.Errorf("seq %d goes backwards (expected >= %d)", e.Seq, next)
	}
	return e, nil
}

// Encode serializes a record in the current schema, quarantined entries included.
func Encode(r *Record) ([]byte, error) {
	env := envelope{
		Schema:     SchemaVersion,
		Entries:    make([]json.RawMessage, 0, len(r.entries)),
		Quarantine: r.quarantine,
	}
	for _, e := range r.entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode entry %d: %w", e.Seq, err)
		}
		env.Entries = append(env.Entries, b)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
