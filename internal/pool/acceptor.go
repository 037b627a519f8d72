package pool

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/limits"
	"github.com/verifier-replay/verifier-server/internal/log"
	"github.com/verifier-replay/verifier-server/internal/session"
	"github.com/verifier-replay/verifier-server/internal/tlsregistry"
)

// Kind names which listener family an Acceptor serves.
type Kind int

const (
	KindHTTP Kind = iota
	KindHTTPS
)

// Acceptor owns one net.Listener and feeds every accepted connection,
// wrapped in the appropriate Session implementation, to a Pool.
//
// Grounded on the accept-loop/short-timeout shape of
// ServerThreadInfo::TF_Accept in original_source/verifier-server.cc,
// expressed with Go's deadline-based listener API instead of a raw
// select/poll loop.
type Acceptor struct {
	kind     Kind
	listener net.Listener
	tlsConf  *tls.Config
	registry *tlsregistry.Registry
	pool     *Pool
	log      log.Logger
	done     chan struct{}
}

// NewAcceptor wraps an already-bound listener. For KindHTTPS, tlsConf must
// be non-nil and registry is consulted by the TLS session for SNI
// diagnostics only (GetConfigForClient on tlsConf is where per-SNI policy
// is actually enforced).
func NewAcceptor(kind Kind, listener net.Listener, tlsConf *tls.Config, registry *tlsregistry.Registry, p *Pool, logger log.Logger) *Acceptor {
	return &Acceptor{
		kind:     kind,
		listener: listener,
		tlsConf:  tlsConf,
		registry: registry,
		pool:     p,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Run accepts connections until Stop is called or the listener errors.
func (a *Acceptor) Run() {
	type deadlineListener interface {
		net.Listener
		SetDeadline(time.Time) error
	}
	dl, hasDeadline := a.listener.(deadlineListener)

	for {
		select {
		case <-a.done:
			return
		default:
		}

		if hasDeadline {
			_ = dl.SetDeadline(time.Now().Add(limits.AcceptPollInterval))
		}

		conn, err := a.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-a.done:
				return
			default:
				a.log.With(log.Fields{"error": err.Error()}).Warn("accept failed")
				continue
			}
		}

		go a.dispatch(conn)
	}
}

func (a *Acceptor) dispatch(conn net.Conn) {
	if a.kind == KindHTTPS && a.tlsConf != nil {
		// Wrap here so an h2 hand-off below reuses the TLS connection.
		conn = tls.Server(conn, a.tlsConf)
	}
	sess, err := a.newSession(conn)
	if err != nil {
		a.log.With(log.Fields{"error": err.Error()}).Warn("session setup failed")
		conn.Close()
		return
	}
	if err := sess.Accept(); err != nil {
		a.log.With(log.Fields{"error": err.Error(), "conn": sess.ConnID()}).Warn("protocol accept failed")
		sess.Close()
		return
	}
	if h2, ok := sess.(*session.H1TLSSession); ok && h2.NegotiatedH2() {
		sess = session.NewH2Session(conn)
		if err := sess.Accept(); err != nil {
			a.log.With(log.Fields{"error": err.Error()}).Warn("h2 upgrade failed")
			sess.Close()
			return
		}
	}
	if !a.pool.Submit(sess) {
		sess.Close()
	}
}

func (a *Acceptor) newSession(conn net.Conn) (session.Session, error) {
	switch a.kind {
	case KindHTTP:
		return session.NewH1Session(conn), nil
	case KindHTTPS:
		tlsConn, ok := conn.(*tls.Conn)
		if a.tlsConf == nil || !ok {
			return nil, errx.Config("accept-tls", "https listener has no tls configuration", nil)
		}
		return session.NewH1TLSSession(tlsConn, a.registry), nil
	default:
		return nil, errx.Config("accept", "unknown listener kind", nil)
	}
}

// Stop signals Run to return; it does not interrupt an in-flight Accept,
// which returns within limits.AcceptPollInterval on its own.
func (a *Acceptor) Stop() {
	close(a.done)
	a.listener.Close()
}
