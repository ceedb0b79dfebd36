package doorstep

// Ledger records which steps are done plus outbound contact counters.
// Entries only ever flip from false to true and counters only grow.
type Ledger struct {
	Done         map[Step]bool `json:"done"`
	MessagesSent int           `json:"messagesSent"`
	CallsMade    int           `json:"callsMade"`
}

// NewLedger returns a ledger with every known step set to false.
func NewLedger() Ledger {
	done := make(map[Step]bool, len(stepNames))
	for _, s := range AllSteps() {
		done[s] = false
	}
	return Ledger{Done: done}
}

// IsDone reports whether step has been completed.
func (l Ledger) IsDone(step Step) bool {
	return l.Done[step]
}

// Mark returns a copy with step set to true. The second result is false when
// the step was already done, in which case the copy equals l.
func (l Ledger) Mark(step Step) (Ledger, bool) {
	if l.Done[step] {
		return l, false
	}
	out := l.Clone()
	out.Done[step] = true
	return out, true
}

// AddMessages returns a copy with the messages-sent counter raised by n (n <= 0 is ignored).
func (l Ledger) AddMessages(n int) Ledger {
	if n <= 0 {
		return l
	}
	out := l.Clone()
	out.MessagesSent += n
	return out
}

// AddCalls returns a copy with the calls-made counter raised by n (n <= 0 is ignored).
func (l Ledger) AddCalls(n int) Ledger {
	if n <= 0 {
		return l
	}
	out := l.Clone()
	out.CallsMade += n
	return out
}

// HasSignature reports whether any signature step is done.
func (l Ledger) HasSignature() bool {
	for s, done := range l.Done {
		if done && s.IsSignature() {
			return true
		}
	}
	return false
}

// Completed lists done steps in declaration order.
func (l Ledger) Completed() []Step {
	var out []Step
	for _, s := range AllSteps() {
		if l.Done[s] {
			out = append(out, s)
		}
	}
	return out
}

// Clone deep-copies the ledger, filling in any known step missing from Done.
func (l Ledger) Clone() Ledger {
	out := NewLedger()
	for s, done := range l.Done {
		if s.Valid() {
			out.Done[s] = done
		}
	}
	out.MessagesSent = l.MessagesSent
	out.CallsMade = l.CallsMade
	return out
}
