package ctlplane

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/config"
	"github.com/pierky/nat64d/internal/nat64/datapath"
	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/logging"
	"github.com/pierky/nat64d/internal/nat64/pool4"
	"github.com/pierky/nat64d/internal/nat64/session"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// Server answers control-plane requests framed by Record over one
// net.Listener (a unix socket in the default deployment). It only mutates
// the in-process pool4/BIB/session/config state; the netlink/genetlink
// path packets actually travel is an external collaborator.
type Server struct {
	pool4DB    *pool4.DB
	bibDB      *bib.DB
	sessions   *session.Table
	cfg        *config.Store
	dispatcher *datapath.Dispatcher
	logger     *logging.Logger

	enabled atomic.Bool
}

// NewServer builds a Server wired to the given components. dispatcher may
// be nil when no packet-ingestion integration is present (the control
// plane alone is still useful for inspecting pool4/BIB/session state).
func NewServer(pool4DB *pool4.DB, bibDB *bib.DB, sessions *session.Table, cfg *config.Store, dispatcher *datapath.Dispatcher, logger *logging.Logger) *Server {
	s := &Server{pool4DB: pool4DB, bibDB: bibDB, sessions: sessions, cfg: cfg, dispatcher: dispatcher, logger: logger}
	s.enabled.Store(true)
	return s
}

// Dispatcher returns the Dispatcher enable/disable gates, for a
// packet-ingestion integration to consult before calling Handle6In or
// Handle4In. Returns nil when this Server was built without one.
func (s *Server) Dispatcher() *datapath.Dispatcher {
	if !s.Enabled() {
		return nil
	}
	return s.dispatcher
}

// Enabled reports whether translation is currently enabled, toggled by
// MsgEnable/MsgDisable.
func (s *Server) Enabled() bool {
	return s.enabled.Load()
}

// Serve accepts connections from ln until it is closed, handling each one
// in its own goroutine; the requests on one connection are answered in
// order, one at a time.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := Decode(conn)
		if err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := resp.Encode(conn); err != nil {
			s.logger.Warn("ctlplane: failed writing response", "err", err)
			return
		}
	}
}

func (s *Server) dispatch(req Record) Record {
	switch req.Type {
	case MsgEnable:
		s.enabled.Store(true)
		return ok()
	case MsgDisable:
		s.enabled.Store(false)
		return ok()
	case MsgSet:
		return s.handleSet(req.Payload)
	case MsgDisplay:
		return s.handleDisplay(req.Payload)
	case MsgPool4Add:
		return s.handlePool4(req.Payload, true)
	case MsgPool4Rm:
		return s.handlePool4(req.Payload, false)
	default:
		return errRecord(nerrors.Errorf(nerrors.KindInvalidArgument, "unknown message type %d", req.Type))
	}
}

func (s *Server) handleSet(payload []byte) Record {
	req, err := DecodeSetRequest(payload)
	if err != nil {
		return errRecord(err)
	}

	base := s.cfg.Current()
	next, err := config.ApplyField(base, req.Field, req.Value)
	if err != nil {
		return errRecord(err)
	}
	s.cfg.Replace(next)
	return ok()
}

func (s *Server) handleDisplay(payload []byte) Record {
	target := string(payload)
	switch target {
	case "config":
		return display(s.renderConfig())
	case "pool4":
		return display(s.renderPool4())
	case "bib":
		return display(s.renderBIB())
	case "session":
		return display(s.renderSessions())
	default:
		return errRecord(nerrors.Errorf(nerrors.KindInvalidArgument, "unknown display target %q", target))
	}
}

// renderConfig renders the config blob followed by the derived enabled
// flag: translation is enabled only when the control plane hasn't
// disabled it and at least one of pool6 or the EAM table is configured.
func (s *Server) renderConfig() string {
	snap := s.cfg.Current()
	var sb strings.Builder
	sb.WriteString(config.Encode(snap))
	enabled := s.Enabled() && (snap.Pool6Present || snap.EAMTPresent)
	fmt.Fprintf(&sb, "enabled = %t\n", enabled)
	return sb.String()
}

func (s *Server) renderPool4() string {
	var sb strings.Builder
	for _, proto := range []tuple.L4Proto{tuple.UDP, tuple.TCP, tuple.ICMP} {
		fmt.Fprintf(&sb, "%s: %d transport addresses\n", proto, s.pool4DB.TotalTAddrs(proto))
	}
	return sb.String()
}

func (s *Server) renderBIB() string {
	var sb strings.Builder
	for _, proto := range []tuple.L4Proto{tuple.UDP, tuple.TCP, tuple.ICMP} {
		fmt.Fprintf(&sb, "%s: %d entries\n", proto, s.bibDB.Count(proto))
	}
	return sb.String()
}

func (s *Server) renderSessions() string {
	var sb strings.Builder
	for _, proto := range []tuple.L4Proto{tuple.UDP, tuple.TCP, tuple.ICMP} {
		counts := s.sessions.CountByState(proto)
		fmt.Fprintf(&sb, "%s: %d sessions\n", proto, s.sessions.Count(proto))
		for state, n := range counts {
			fmt.Fprintf(&sb, "  %s: %d\n", state, n)
		}
	}
	return sb.String()
}

func (s *Server) handlePool4(payload []byte, add bool) Record {
	req, err := DecodePool4Request(payload)
	if err != nil {
		return errRecord(err)
	}

	prefix := pool4.IPv4Prefix{Addr: req.Prefix, Len: int(req.PrefixLen)}
	ports := pool4.PortRange{Min: req.PortMin, Max: req.PortMax}

	if add {
		err = s.pool4DB.Add(req.Mark, req.Proto, prefix, ports)
	} else {
		err = s.pool4DB.Rm(req.Mark, req.Proto, prefix, ports)
	}
	if err != nil {
		return errRecord(err)
	}
	return ok()
}

func ok() Record {
	return Record{Type: MsgDisplay, Payload: EncodeDisplayResponse(DisplayResponse{Text: "OK\n"})}
}

func display(text string) Record {
	return Record{Type: MsgDisplay, Payload: EncodeDisplayResponse(DisplayResponse{Text: text})}
}

func errRecord(err error) Record {
	return Record{Type: MsgDisplay, Payload: EncodeDisplayResponse(DisplayResponse{Text: "ERROR: " + err.Error() + "\n"})}
}
