package model

import "time"

// Chunks is an ordered sequence of opaque byte strings.
type Chunks [][]byte

// Equal reports element-wise equality.
func (c Chunks) Equal(other Chunks) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if string(c[i]) != string(other[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so stored sequences never alias caller buffers.
func (c Chunks) Clone() Chunks {
	if c == nil {
		return nil
	}
	out := make(Chunks, len(c))
	for i, v := range c {
		out[i] = append([]byte(nil), v...)
	}
	return out
}

// Request is one submitOrRetrieve call. TTL is in seconds; 0 selects the store maximum.
type Request struct {
	Key    []byte
	ID     []byte
	Offset uint64
	Values Chunks
	TTL    uint32
}

type Outcome byte

const (
	// OutcomeOffered: no offer existed; one was created (or nothing, when values were empty).
	OutcomeOffered Outcome = iota + 1
	// OutcomeAppended: the offer owner resumed and refreshed its offer.
	OutcomeAppended
	// OutcomeMatched: a second party met the pending offer.
	OutcomeMatched
	// OutcomeRetrieved: a matched party read its answer.
	OutcomeRetrieved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOffered:
		return "offered"
	case OutcomeAppended:
		return "appended"
	case OutcomeMatched:
		return "matched"
	case OutcomeRetrieved:
		return "retrieved"
	default:
		return "unknown"
	}
}

// Result is the success variant of a submitOrRetrieve call.
type Result struct {
	Key     []byte
	ID      []byte
	Offset  uint64
	TTL     uint32
	Values  Chunks
	Outcome Outcome
}

// HasTTL reports whether an offer was created or refreshed.
func (r Result) HasTTL() bool {
	return r.Outcome == OutcomeOffered || r.Outcome == OutcomeAppended
}

// HasValues reports whether counterpart values are carried, possibly an empty sequence.
func (r Result) HasValues() bool {
	return r.Outcome == OutcomeMatched || r.Outcome == OutcomeRetrieved
}

// Event records a state change or read of an exchange.
type Event struct {
	Sequence uint64
	Type     Outcome
	Key      []byte
	Party    []byte
	Offset   uint64
	Chunks   uint32 // counterpart chunks delivered
	At       time.Time
}

// EventFromResult builds the event for a successful call. Sequence is left for the sink.
func EventFromResult(res Result, at time.Time) Event {
	return Event{
		Type:   res.Outcome,
		Key:    res.Key,
		Party:  res.ID,
		Offset: res.Offset,
		Chunks: uint32(len(res.Values)),
		At:     at,
	}
}
