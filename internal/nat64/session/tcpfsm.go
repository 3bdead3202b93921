package session

// State is a session's lifecycle state. UDP and ICMP sessions only ever
// use Established; TCP sessions use the full state machine below.
type State int

const (
	Established State = iota
	V4Init
	V6Init
	V4FinRcv
	V6FinRcv
	V4V6FinRcv
	Trans
	Closed
)

func (s State) String() string {
	switch s {
	case Established:
		return "ESTABLISHED"
	case V4Init:
		return "V4_INIT"
	case V6Init:
		return "V6_INIT"
	case V4FinRcv:
		return "V4_FIN_RCV"
	case V6FinRcv:
		return "V6_FIN_RCV"
	case V4V6FinRcv:
		return "V4V6_FIN_RCV"
	case Trans:
		return "TRANS"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event is a TCP control event observed by the datapath, or the synthetic
// Data event used to model "any data" lifting TRANS back to ESTABLISHED.
type Event int

const (
	Ev6SYN Event = iota
	Ev4SYN
	Ev6FIN
	Ev4FIN
	EvRST
	EvData
)

// TTLKind says which configured duration a transition's new deadline
// should use; the TCP "v4 init" grace period is a fixed 6s regardless of
// configuration.
type TTLKind int

const (
	TTLNone TTLKind = iota
	TTLUDP
	TTLICMP
	TTLTCPEst
	TTLTCPTrans
	TTLTCPV4InitFixed
)

// TCPNext computes the TCP state machine's next state for (current, event)
// per the transition table. ok is false when the event has no
// transition from the current state (the caller should treat the packet
// as a TRANSLATE with no state change, or drop it per its own policy).
func TCPNext(current State, ev Event, handleRSTDuringFinRcv bool) (next State, ttl TTLKind, ok bool) {
	switch {
	case current == Closed && ev == Ev6SYN:
		return V6Init, TTLTCPTrans, true
	case current == Closed && ev == Ev4SYN:
		return V4Init, TTLTCPV4InitFixed, true
	case current == V6Init && ev == Ev4SYN:
		return Established, TTLTCPEst, true
	case current == V4Init && ev == Ev6SYN:
		return Established, TTLTCPEst, true
	case current == Established && ev == Ev6FIN:
		return V6FinRcv, TTLTCPEst, true
	case current == Established && ev == Ev4FIN:
		return V4FinRcv, TTLTCPEst, true
	case current == V4FinRcv && ev == Ev6FIN:
		return V4V6FinRcv, TTLTCPTrans, true
	case current == V6FinRcv && ev == Ev4FIN:
		return V4V6FinRcv, TTLTCPTrans, true
	case current == Trans && ev == EvData:
		return Established, TTLTCPEst, true
	}

	if ev == EvRST {
		if current == V4V6FinRcv {
			return current, TTLNone, false
		}
		if (current == V4FinRcv || current == V6FinRcv) && !handleRSTDuringFinRcv {
			return current, TTLNone, false
		}
		return Trans, TTLTCPTrans, true
	}

	return current, TTLNone, false
}
