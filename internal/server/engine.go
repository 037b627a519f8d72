// Package server wires the Transaction Catalog, TLS Policy Registry,
// Worker Pool, Acceptors, and Connection Handler into a running process:
// load the corpus, finalize the catalog, open every configured listener,
// and block until shutdown is requested.
//
// Grounded on Engine::command_run in original_source/verifier-server.cc:
// load under LoadMutex, finalize synthesized bodies, open listeners,
// install the SIGINT handler, join every server thread.
package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/verifier-replay/verifier-server/internal/catalog"
	"github.com/verifier-replay/verifier-server/internal/conn"
	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/log"
	"github.com/verifier-replay/verifier-server/internal/pool"
	"github.com/verifier-replay/verifier-server/internal/session"
	"github.com/verifier-replay/verifier-server/internal/shutdown"
	"github.com/verifier-replay/verifier-server/internal/tlsprofile"
	"github.com/verifier-replay/verifier-server/internal/tlsregistry"
	"github.com/verifier-replay/verifier-server/internal/verify"
)

// Config is the fully-resolved set of inputs the CLI layer parses flags
// into (§6).
type Config struct {
	CorpusPath  string
	ListenHTTP  []string
	ListenHTTPS []string
	ListenHTTP3 []string

	ThreadLimit int
	Strict      bool
	KeyFormat   string
	TLSProfile  string

	ServerCertFile string
	ServerKeyFile  string
	CACertsFile    string
	KeyLogFile     string

	Loader corpus.Loader
	Log    log.Logger
}

// Engine owns every long-lived component for one server run.
type Engine struct {
	cfg       Config
	catalog   *catalog.Catalog
	registry  *tlsregistry.Registry
	exitCode  ExitCode
	coord     *shutdown.Coordinator
	acceptors []*pool.Acceptor
	h3        []*quic.Listener
	pool      *pool.Pool
}

// New constructs an Engine from cfg. It does not load the corpus or open
// any socket; call Run for that.
func New(cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}
	return &Engine{
		cfg:      cfg,
		catalog:  catalog.New(),
		registry: tlsregistry.New(),
		coord:    shutdown.New(),
	}
}

// Run loads the corpus, opens every configured listener, and blocks until
// the shutdown coordinator is signaled (SIGINT/SIGTERM). A load or
// listener setup error returns 1 before anything blocks. It returns the
// process exit code (§6, §7).
func (e *Engine) Run() int {
	if err := e.load(); err != nil {
		e.cfg.Log.Error(err.Error())
		return 1
	}
	e.catalog.Finalize()
	e.cfg.Log.Info(fmt.Sprintf("loaded %d transactions", e.catalog.Len()))

	keyFormat := corpus.NewKeyFormatter(e.cfg.KeyFormat)
	handler := &conn.Handler{
		Catalog:    e.catalog,
		Verify:     verify.New(e.cfg.Strict),
		Log:        e.cfg.Log,
		KeyFormat:  keyFormat,
		ShouldStop: e.coord.Stopped,
		Fail:       e.exitCode.Fail,
	}

	threadLimit := e.cfg.ThreadLimit
	if threadLimit <= 0 {
		threadLimit = 64
	}
	e.pool = pool.New(threadLimit, handler.Serve, e.cfg.Log)

	if err := e.openHTTPListeners(); err != nil {
		e.cfg.Log.Error(err.Error())
		return 1
	}
	if err := e.openHTTPSListeners(); err != nil {
		e.cfg.Log.Error(err.Error())
		return 1
	}
	if err := e.openHTTP3Listeners(); err != nil {
		e.cfg.Log.Error(err.Error())
		return 1
	}

	e.coord.WatchSignals()
	for _, a := range e.acceptors {
		acceptor := a
		e.coord.Go(acceptor.Run)
	}
	for _, l := range e.h3 {
		listener := l
		e.coord.Go(func() { e.serveH3(listener) })
	}

	<-e.coord.Done()
	e.cfg.Log.Info("shutdown requested, draining connections")
	for _, a := range e.acceptors {
		a.Stop()
	}
	for _, l := range e.h3 {
		l.Close()
	}
	e.pool.Close()
	e.coord.Wait()

	return e.exitCode.Code()
}

func (e *Engine) load() error {
	if e.cfg.Loader == nil {
		e.cfg.Loader = &corpus.YAMLLoader{KeyFormat: e.cfg.KeyFormat}
	}
	sink := &corpusSink{catalog: e.catalog, registry: e.registry}
	return e.cfg.Loader.Load(e.cfg.CorpusPath, sink)
}

func (e *Engine) openHTTPListeners() error {
	for _, addr := range e.cfg.ListenHTTP {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return errx.Config("listen-http", fmt.Sprintf("binding %s", addr), err)
		}
		e.acceptors = append(e.acceptors, pool.NewAcceptor(pool.KindHTTP, l, nil, nil, e.pool, e.cfg.Log))
	}
	return nil
}

func (e *Engine) openHTTPSListeners() error {
	if len(e.cfg.ListenHTTPS) == 0 {
		return nil
	}
	tlsConf, err := e.buildTLSConfig()
	if err != nil {
		return err
	}
	for _, addr := range e.cfg.ListenHTTPS {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return errx.Config("listen-https", fmt.Sprintf("binding %s", addr), err)
		}
		e.acceptors = append(e.acceptors, pool.NewAcceptor(pool.KindHTTPS, l, tlsConf, e.registry, e.pool, e.cfg.Log))
	}
	return nil
}

// openHTTP3Listeners opens the UDP/QUIC socket named by --listen-http3,
// per §9: the listener and handshake are real, request handling is
// gated off.
func (e *Engine) openHTTP3Listeners() error {
	if len(e.cfg.ListenHTTP3) == 0 {
		return nil
	}
	tlsConf, err := e.buildTLSConfig()
	if err != nil {
		return err
	}
	tlsConf.NextProtos = []string{"h3"}
	for _, addr := range e.cfg.ListenHTTP3 {
		l, err := quic.ListenAddr(addr, tlsConf, nil)
		if err != nil {
			return errx.Config("listen-http3", fmt.Sprintf("binding %s", addr), err)
		}
		e.h3 = append(e.h3, l)
	}
	return nil
}

func (e *Engine) serveH3(l *quic.Listener) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		qc, err := l.Accept(ctx)
		cancel()
		if err != nil {
			if e.coord.Stopped() {
				return
			}
			continue
		}
		go func() {
			s := session.NewH3Session(qc, true)
			if err := s.Accept(); err != nil {
				s.Close()
				return
			}
			e.pool.Submit(s)
		}()
	}
}

func (e *Engine) buildTLSConfig() (*tls.Config, error) {
	if e.cfg.ServerCertFile == "" || e.cfg.ServerKeyFile == "" {
		return nil, errx.Config("tls-config", "https/http3 listener requires --server-cert and --server-key", nil)
	}
	cert, err := tls.LoadX509KeyPair(e.cfg.ServerCertFile, e.cfg.ServerKeyFile)
	if err != nil {
		return nil, errx.Config("tls-config", "loading server certificate", err)
	}

	conf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}
	tlsprofile.Apply(conf, tlsprofile.ByName(e.cfg.TLSProfile))

	if e.cfg.CACertsFile != "" {
		pem, err := os.ReadFile(e.cfg.CACertsFile)
		if err != nil {
			return nil, errx.Config("tls-config", "reading ca-certs", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errx.Config("tls-config", "ca-certs file contains no usable certificates", nil)
		}
		conf.ClientCAs = pool
	}

	registry := e.registry
	conf.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		behavior, ok := registry.Lookup(hello.ServerName)
		if !ok {
			return nil, nil
		}
		perSNI := conf.Clone()
		if behavior.VerifyMode > 0 {
			perSNI.ClientAuth = tls.RequireAndVerifyClientCert
		}
		if len(behavior.ALPN) > 0 {
			perSNI.NextProtos = behavior.ALPN
		}
		return perSNI, nil
	}

	if e.cfg.KeyLogFile != "" {
		f, err := os.OpenFile(e.cfg.KeyLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, errx.Config("tls-config", "opening tls-secrets-log-file", err)
		}
		conf.KeyLogWriter = f
	}

	return conf, nil
}
