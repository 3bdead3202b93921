package session

import "testing"

func TestTCPNextHandshake(t *testing.T) {
	next, ttl, ok := TCPNext(Closed, Ev6SYN, false)
	if !ok || next != V6Init || ttl != TTLTCPTrans {
		t.Fatalf("CLOSED+6SYN = %v,%v,%v, want V6_INIT,TTLTCPTrans,true", next, ttl, ok)
	}

	next, ttl, ok = TCPNext(V6Init, Ev4SYN, false)
	if !ok || next != Established || ttl != TTLTCPEst {
		t.Fatalf("V6_INIT+4SYN = %v,%v,%v, want ESTABLISHED,TTLTCPEst,true", next, ttl, ok)
	}

	next, ttl, ok = TCPNext(Closed, Ev4SYN, false)
	if !ok || next != V4Init || ttl != TTLTCPV4InitFixed {
		t.Fatalf("CLOSED+4SYN = %v,%v,%v, want V4_INIT,TTLTCPV4InitFixed,true", next, ttl, ok)
	}

	next, ttl, ok = TCPNext(V4Init, Ev6SYN, false)
	if !ok || next != Established || ttl != TTLTCPEst {
		t.Fatalf("V4_INIT+6SYN = %v,%v,%v, want ESTABLISHED,TTLTCPEst,true", next, ttl, ok)
	}
}

func TestTCPNextFinSequence(t *testing.T) {
	next, ttl, ok := TCPNext(Established, Ev6FIN, false)
	if !ok || next != V6FinRcv || ttl != TTLTCPEst {
		t.Fatalf("ESTABLISHED+6FIN = %v,%v,%v", next, ttl, ok)
	}

	next, ttl, ok = TCPNext(Established, Ev4FIN, false)
	if !ok || next != V4FinRcv || ttl != TTLTCPEst {
		t.Fatalf("ESTABLISHED+4FIN = %v,%v,%v", next, ttl, ok)
	}

	next, ttl, ok = TCPNext(V4FinRcv, Ev6FIN, false)
	if !ok || next != V4V6FinRcv || ttl != TTLTCPTrans {
		t.Fatalf("V4_FIN_RCV+6FIN = %v,%v,%v", next, ttl, ok)
	}

	next, ttl, ok = TCPNext(V6FinRcv, Ev4FIN, false)
	if !ok || next != V4V6FinRcv || ttl != TTLTCPTrans {
		t.Fatalf("V6_FIN_RCV+4FIN = %v,%v,%v", next, ttl, ok)
	}
}

func TestTCPNextRSTGatedDuringFinRcv(t *testing.T) {
	_, _, ok := TCPNext(V4FinRcv, EvRST, false)
	if ok {
		t.Fatalf("RST during V4_FIN_RCV should be rejected when handleRSTDuringFinRcv is false")
	}

	next, ttl, ok := TCPNext(V4FinRcv, EvRST, true)
	if !ok || next != Trans || ttl != TTLTCPTrans {
		t.Fatalf("RST during V4_FIN_RCV with flag set = %v,%v,%v, want TRANS,TTLTCPTrans,true", next, ttl, ok)
	}
}

func TestTCPNextRSTFromEstablished(t *testing.T) {
	next, ttl, ok := TCPNext(Established, EvRST, false)
	if !ok || next != Trans || ttl != TTLTCPTrans {
		t.Fatalf("ESTABLISHED+RST = %v,%v,%v, want TRANS,TTLTCPTrans,true", next, ttl, ok)
	}
}

func TestTCPNextRSTNeverLeavesV4V6FinRcv(t *testing.T) {
	_, _, ok := TCPNext(V4V6FinRcv, EvRST, true)
	if ok {
		t.Fatalf("RST must never move a session out of V4V6_FIN_RCV")
	}
}

func TestTCPNextTransRecoversOnData(t *testing.T) {
	next, ttl, ok := TCPNext(Trans, EvData, false)
	if !ok || next != Established || ttl != TTLTCPEst {
		t.Fatalf("TRANS+data = %v,%v,%v, want ESTABLISHED,TTLTCPEst,true", next, ttl, ok)
	}
}

func TestTCPNextNoTransitionForUnrelatedEvent(t *testing.T) {
	_, _, ok := TCPNext(Established, Ev6SYN, false)
	if ok {
		t.Fatalf("a duplicate SYN on an ESTABLISHED session should not define a new transition")
	}
}
