package doorstep

import "strings"

// OutcomeKind names the ledger a finished delivery was archived into.
type OutcomeKind string

const (
	OutcomeDelivered OutcomeKind = "delivered"
	OutcomeReturned  OutcomeKind = "returned"
)

// Outcomes holds the two append-only outcome ledgers. They are slices on the
// wire but behave as sets: an id lives in at most one of them, once.
type Outcomes struct {
	Delivered     []string          `json:"deliveredSuccessfully"`
	Returned      []string          `json:"returnedToWarehouse"`
	ReturnReasons map[string]string `json:"returnReasons,omitempty"`
}

// Lookup returns the ledger holding id.
func (o Outcomes) Lookup(id string) (OutcomeKind, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	for _, d := range o.Delivered {
		if d == id {
			return OutcomeDelivered, true
		}
	}
	for _, r := range o.Returned {
		if r == id {
			return OutcomeReturned, true
		}
	}
	return "", false
}

// Contains reports whether id is in either ledger.
func (o Outcomes) Contains(id string) bool {
	_, ok := o.Lookup(id)
	return ok
}

// Record returns a copy with id appended to the kind ledger. The second result
// is false, and the copy equals o, when id already sits in either ledger.
func (o Outcomes) Record(kind OutcomeKind, id, reason string) (Outcomes, bool) {
	id = strings.TrimSpace(id)
	if id == "" || o.Contains(id) {
		return o, false
	}
	out := o.Clone()
	switch kind {
	case OutcomeDelivered:
		out.Delivered = append(out.Delivered, id)
	case OutcomeReturned:
		out.Returned = append(out.Returned, id)
		if reason = strings.TrimSpace(reason); reason != "" {
			if out.ReturnReasons == nil {
				out.ReturnReasons = map[string]string{}
			}
			out.ReturnReasons[id] = reason
		}
	default:
		return o, false
	}
	return out, true
}

// Clone deep-copies the ledgers, dropping any duplicate ids a hand-edited
// snapshot may carry.
func (o Outcomes) Clone() Outcomes {
	seen := map[string]bool{}
	out := Outcomes{}
	for _, id := range o.Delivered {
		if id != "" && !seen[id] {
			seen[id] = true
			out.Delivered = append(out.Delivered, id)
		}
	}
	for _, id := range o.Returned {
		if id != "" && !seen[id] {
			seen[id] = true
			out.Returned = append(out.Returned, id)
		}
	}
	if len(o.ReturnReasons) > 0 {
		out.ReturnReasons = make(map[string]string, len(o.ReturnReasons))
		for k, v := range o.ReturnReasons {
			out.ReturnReasons[k] = v
		}
	}
	return out
}
