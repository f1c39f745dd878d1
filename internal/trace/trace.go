// Package trace records what a run did: goal lifecycle, state transitions,
// client messages and collaborator notifications, in dispatch order.
//
// A trace serializes to canonical JSON, so two runs of the same scenario
// can be compared byte for byte or by digest.
package trace

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/ir"
	"github.com/roach88/duet/internal/procedure"
	"github.com/roach88/duet/internal/topology"
)

// Record kinds.
const (
	KindActivated       = "goal.activated"
	KindQueued          = "goal.queued"
	KindDropped         = "goal.dropped"
	KindCancelRequested = "goal.cancel_requested"
	KindCompleted       = "goal.completed"
	KindCancelled       = "goal.cancelled"
	KindState           = "state"
	KindMessage         = "message"
	KindNotification    = "notification"
)

// Record is one trace entry.
type Record struct {
	Seq          int    `json:"seq"`
	Kind         string `json:"kind"`
	Subject      string `json:"subject"`
	ActivationID string `json:"activation_id,omitempty"`
	Detail       string `json:"detail,omitempty"`
	PayloadHash  string `json:"payload_hash,omitempty"`
}

// String renders the record as one line.
func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", r.Kind, r.Subject)
	if r.Detail != "" {
		b.WriteString(" ")
		b.WriteString(r.Detail)
	}
	return b.String()
}

func (r Record) canonical() map[string]any {
	m := map[string]any{
		"seq":     int64(r.Seq),
		"kind":    r.Kind,
		"subject": r.Subject,
	}
	if r.ActivationID != "" {
		m["activation_id"] = r.ActivationID
	}
	if r.Detail != "" {
		m["detail"] = r.Detail
	}
	if r.PayloadHash != "" {
		m["payload_hash"] = r.PayloadHash
	}
	return m
}

// Recorder implements goals.Observer, topology.Listener and
// topology.Client, and subscribes to collaborator notifications through
// Notification.
//
// A Recorder is used on the dispatch loop only.
type Recorder struct {
	records []Record
}

var (
	_ goals.Observer    = (*Recorder)(nil)
	_ topology.Listener = (*Recorder)(nil)
	_ topology.Client   = (*Recorder)(nil)
)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(rec Record) {
	rec.Seq = len(r.records) + 1
	r.records = append(r.records, rec)
}

func (r *Recorder) GoalActivated(a goals.Activation) {
	// Payloads built by predicates are canonical by construction.
	hash, _ := ir.PayloadHash(a.Param)
	r.add(Record{Kind: KindActivated, Subject: a.Name, ActivationID: a.ID, Detail: a.Originator, PayloadHash: hash})
}

func (r *Recorder) GoalQueued(a goals.Activation, reason string) {
	r.add(Record{Kind: KindQueued, Subject: a.Name, ActivationID: a.ID, Detail: reason})
}

func (r *Recorder) GoalDropped(a goals.Activation, reason string) {
	r.add(Record{Kind: KindDropped, Subject: a.Name, ActivationID: a.ID, Detail: reason})
}

func (r *Recorder) GoalCancelRequested(a goals.Activation) {
	r.add(Record{Kind: KindCancelRequested, Subject: a.Name, ActivationID: a.ID})
}

func (r *Recorder) GoalCompleted(a goals.Activation, res procedure.Result) {
	r.add(Record{Kind: KindCompleted, Subject: a.Name, ActivationID: a.ID, Detail: res.String()})
}

func (r *Recorder) GoalCancelled(a goals.Activation) {
	r.add(Record{Kind: KindCancelled, Subject: a.Name, ActivationID: a.ID})
}

// StateChanged implements topology.Listener.
func (r *Recorder) StateChanged(from, to topology.State) {
	r.add(Record{Kind: KindState, Subject: string(to), Detail: "from " + string(from)})
}

// Receive implements topology.Client.
func (r *Recorder) Receive(msg topology.Message) {
	r.add(Record{Kind: KindMessage, Subject: msg.Kind(), Detail: describe(msg)})
}

// Notification records a collaborator notification.
func (r *Recorder) Notification(n collab.Notification) {
	r.add(Record{Kind: KindNotification, Subject: n.Kind(), Detail: describe(n)})
}

// describe renders the fields of a message or notification, or "" for
// field-less values.
func describe(v any) string {
	s := fmt.Sprintf("%v", v)
	if s == "{}" {
		return ""
	}
	return s
}

// Records returns a copy of the trace.
func (r *Recorder) Records() []Record {
	return append([]Record(nil), r.records...)
}

// Lines renders every record with Record.String.
func (r *Recorder) Lines() []string {
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.String()
	}
	return out
}

// Text renders the trace as newline-terminated lines.
func (r *Recorder) Text() string {
	var b strings.Builder
	for _, l := range r.Lines() {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// Kinds returns the records of the given kind.
func (r *Recorder) Kinds(kind string) []Record {
	var out []Record
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// MarshalCanonical encodes the trace as canonical JSON lines.
func (r *Recorder) MarshalCanonical() ([]byte, error) {
	return Encode(r.records)
}

// Digest identifies the whole trace.
func (r *Recorder) Digest() (string, error) {
	return Digest(r.records)
}

// Encode renders records as canonical JSON lines, one per record.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := ir.MarshalCanonical(rec.canonical())
		if err != nil {
			return nil, fmt.Errorf("trace record %d: %w", rec.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Digest is ir.TraceDigest over Encode(records).
func Digest(records []Record) (string, error) {
	data, err := Encode(records)
	if err != nil {
		return "", err
	}
	return ir.TraceDigest(data), nil
}

// Reset discards every record.
func (r *Recorder) Reset() {
	r.records = nil
}
