package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/topology"
	"github.com/roach88/duet/internal/trace"
)

// AssertionError is returned when an assertion fails. It carries the
// trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []trace.Record
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, rec := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", rec.Seq, rec.String())
	}
	return buf.String()
}

func evaluateAssertion(records []trace.Record, state topology.State, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(records, a)
	case AssertTraceOrder:
		return assertTraceOrder(records, a)
	case AssertTraceCount:
		return assertTraceCount(records, a)
	case AssertFinalState:
		if string(state) != a.State {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: a.State,
				Actual:   string(state),
				Trace:    records,
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func matches(rec trace.Record, kind, subject string) bool {
	return rec.Kind == kind && (subject == "" || rec.Subject == subject)
}

func assertTraceContains(records []trace.Record, a Assertion) error {
	for _, rec := range records {
		if matches(rec, a.Kind, a.Subject) && (a.Detail == "" || rec.Detail == a.Detail) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: strings.TrimSpace(fmt.Sprintf("%s %s %s", a.Kind, a.Subject, a.Detail)),
		Actual:   "not found in trace",
		Trace:    records,
	}
}

// assertTraceOrder requires a record starting with each entry, in order.
// Other records may appear in between.
func assertTraceOrder(records []trace.Record, a Assertion) error {
	next := 0
	for _, rec := range records {
		if next == len(a.Entries) {
			break
		}
		if strings.HasPrefix(rec.String(), a.Entries[next]) {
			next++
		}
	}
	if next == len(a.Entries) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Entries, " -> "),
		Actual:   fmt.Sprintf("%q not found after %d matched entries", a.Entries[next], next),
		Trace:    records,
	}
}

func assertTraceCount(records []trace.Record, a Assertion) error {
	n := 0
	for _, rec := range records {
		if matches(rec, a.Kind, a.Subject) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d x %s %s", a.Count, a.Kind, a.Subject),
		Actual:   fmt.Sprintf("%d", n),
		Trace:    records,
	}
}

// check compares the run so far with an expect step and returns one line
// per mismatch.
func (r *run) check(x *Expect) []string {
	var out []string
	failf := func(format string, args ...any) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	topo := r.device.Topology()
	if x.State != "" && string(topo.State()) != x.State {
		failf("state: got %s, want %s", topo.State(), x.State)
	}

	g := topo.Goals()
	catalog := r.device.Catalog()
	active := []string{}
	for _, id := range g.ActiveGoals().Members() {
		active = append(active, catalog.GoalName(id))
	}
	pending := []string{}
	for _, id := range g.PendingGoals() {
		pending = append(pending, catalog.GoalName(id))
	}

	if x.Idle && (len(active) > 0 || len(pending) > 0) {
		failf("idle: active %v, pending %v", active, pending)
	}
	if x.ActiveGoals != nil {
		want := slices.Clone(x.ActiveGoals)
		slices.Sort(want)
		got := slices.Clone(active)
		slices.Sort(got)
		if !slices.Equal(got, want) {
			failf("active_goals: got %v, want %v", got, want)
		}
	}
	if x.PendingGoals != nil && !slices.Equal(pending, x.PendingGoals) {
		failf("pending_goals: got %v, want %v", pending, x.PendingGoals)
	}

	if x.Messages != nil {
		kinds := make([]string, len(r.client.messages))
		for i, m := range r.client.messages {
			kinds[i] = m.Kind()
		}
		if !slices.Equal(kinds, x.Messages) {
			failf("messages: got %v, want %v", kinds, x.Messages)
		}
	}
	if x.LastMessage != "" {
		last := "<none>"
		if n := len(r.client.messages); n > 0 {
			last = renderMessage(r.client.messages[n-1])
		}
		if last != x.LastMessage {
			failf("last_message: got %q, want %q", last, x.LastMessage)
		}
	}

	if x.Calls != nil && !slices.Equal(r.fc.Calls, x.Calls) {
		failf("calls: got %v, want %v", r.fc.Calls, x.Calls)
	}
	for _, op := range sortedKeys(x.Called) {
		if got := r.fc.Called(op); got != x.Called[op] {
			failf("called %s: got %d, want %d", op, got, x.Called[op])
		}
	}

	if x.Device != nil {
		out = append(out, r.checkDevice(x.Device)...)
	}
	return out
}

func (r *run) checkDevice(d *DeviceExpect) []string {
	var out []string
	st := r.device.State()
	checkBool := func(name string, want *bool, got bool) {
		if want != nil && *want != got {
			out = append(out, fmt.Sprintf("device.%s: got %t, want %t", name, got, *want))
		}
	}

	checkBool("paired", d.Paired, st.Paired)
	checkBool("peer_connected", d.PeerConnected, st.PeerConnected)
	checkBool("advertising", d.Advertising, st.Advertising)
	checkBool("standalone", d.Standalone, st.Standalone)
	checkBool("shutting_down", d.ShuttingDown, st.ShuttingDown)

	if d.Role != "" {
		role := "unknown"
		if st.RoleKnown {
			role = st.Role.String()
		}
		if role != d.Role {
			out = append(out, fmt.Sprintf("device.role: got %s, want %s", role, d.Role))
		}
	}
	if d.Profiles != nil {
		want, err := collab.ParseProfiles(d.Profiles)
		if err != nil {
			out = append(out, fmt.Sprintf("device.profiles: %v", err))
		} else if want != st.ProfilesConnected {
			out = append(out, fmt.Sprintf("device.profiles: got %s, want %s", st.ProfilesConnected, want))
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
