package topology

import "github.com/roach88/duet/internal/collab"

// Message is delivered to clients. Lifecycle confirmations are defined
// here; the domain layer adds its own result messages.
type Message interface {
	Kind() string
}

// Client receives messages on the dispatch loop. Clients are compared by
// identity, so implementations should be pointer types.
type Client interface {
	Receive(msg Message)
}

// StartCfm answers Start. Success means the topology entered Starting.
type StartCfm struct{ Status collab.Status }

// StartedCfm reports the outcome of the start goal.
type StartedCfm struct{ Status collab.Status }

// StoppingCfm answers Stop. Success means the stop sequence is running.
type StoppingCfm struct{ Status collab.Status }

// StopCfm reports that the topology reached Stopped; Failure means the
// stop sequence failed or was cut short by the fail-safe timer.
type StopCfm struct{ Status collab.Status }

func (StartCfm) Kind() string    { return "start_cfm" }
func (StartedCfm) Kind() string  { return "started_cfm" }
func (StoppingCfm) Kind() string { return "stopping_cfm" }
func (StopCfm) Kind() string     { return "stop_cfm" }

// Inbox is a Client that keeps every message it receives.
type Inbox struct {
	Name     string
	Messages []Message
}

// Receive implements Client.
func (in *Inbox) Receive(msg Message) {
	in.Messages = append(in.Messages, msg)
}

// Kinds returns the kinds of the received messages in order.
func (in *Inbox) Kinds() []string {
	out := make([]string, len(in.Messages))
	for i, m := range in.Messages {
		out[i] = m.Kind()
	}
	return out
}

// Last returns the most recent message, or nil.
func (in *Inbox) Last() Message {
	if len(in.Messages) == 0 {
		return nil
	}
	return in.Messages[len(in.Messages)-1]
}
