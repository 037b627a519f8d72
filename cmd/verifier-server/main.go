// Command verifier-server is the replay-driven HTTP origin server's entry
// point: it loads a declarative transaction corpus and serves recorded
// responses to verify a proxy's outbound request behavior (§6).
//
// Grounded on the original's main()/command-line handling in
// original_source/verifier-server.cc (block_sigpipe, Shutdown_Flag,
// process_exit_code) and adapted to the teacher's cobra-based CLI shape.
package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verifier-replay/verifier-server/internal/log"
	"github.com/verifier-replay/verifier-server/internal/server"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Mirrors the original's block_sigpipe(): a peer resetting a connection
	// mid-write must surface as an I/O error, never terminate the process.
	signalIgnore(syscall.SIGPIPE)

	var (
		listenHTTP  []string
		listenHTTPS []string
		listenHTTP3 []string
		threadLimit int
		strict      bool
		keyFormat   string
		tlsProfile  string
		serverCert  string
		serverKey   string
		caCerts     string
		keyLogFile  string
		verbose     string
	)

	root := &cobra.Command{
		Use:     "verifier-server",
		Short:   "Replay-driven HTTP origin server for proxy verification",
		Version: version,
	}

	runCmd := &cobra.Command{
		Use:   "run <corpus-path>",
		Short: "Load a transaction corpus and serve it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := log.ParseVerbosity(verbose)
			logger := log.New(os.Stderr, level)
			if !ok && verbose != "" {
				logger.Warn(fmt.Sprintf("unrecognized --verbose value %q, defaulting to info", verbose))
			}

			cfg := server.Config{
				CorpusPath:     args[0],
				ListenHTTP:     listenHTTP,
				ListenHTTPS:    splitCommaFlag(listenHTTPS),
				ListenHTTP3:    splitCommaFlag(listenHTTP3),
				ThreadLimit:    threadLimit,
				Strict:         strict,
				KeyFormat:      keyFormat,
				TLSProfile:     tlsProfile,
				ServerCertFile: serverCert,
				ServerKeyFile:  serverKey,
				CACertsFile:    caCerts,
				KeyLogFile:     keyLogFile,
				Log:            logger,
			}

			engine := server.New(cfg)
			code := engine.Run()
			if code != 0 {
				return fmt.Errorf("server exited with status %d", code)
			}
			return nil
		},
	}

	runCmd.Flags().Var(&singleOccurrenceListFlag{name: "listen-http", values: &listenHTTP}, "listen-http", "HTTP listen address(es), comma-separated; may only be given once")
	runCmd.Flags().StringSliceVar(&listenHTTPS, "listen-https", nil, "HTTPS listen address(es); may be repeated or comma-separated")
	runCmd.Flags().StringSliceVar(&listenHTTP3, "listen-http3", nil, "HTTP/3 (QUIC) listen address(es); may be repeated or comma-separated")
	runCmd.Flags().IntVar(&threadLimit, "thread-limit", 64, "maximum concurrent connection-handling workers")
	runCmd.Flags().BoolVarP(&strict, "strict", "s", false, "treat every recorded header without an explicit rule as an equality check")
	runCmd.Flags().StringVar(&keyFormat, "format", "", "key-format template used to match requests to transactions (default {url})")
	runCmd.Flags().StringVar(&tlsProfile, "tls-profile", "secure", "TLS version/cipher profile: modern, secure, compatible")
	runCmd.Flags().StringVar(&serverCert, "server-cert", "", "PEM certificate file for HTTPS/HTTP3 listeners")
	runCmd.Flags().StringVar(&serverKey, "server-key", "", "PEM private key file for HTTPS/HTTP3 listeners")
	runCmd.Flags().StringVar(&caCerts, "ca-certs", "", "PEM CA bundle used to verify client certificates")
	runCmd.Flags().StringVar(&keyLogFile, "tls-secrets-log-file", "", "write TLS key material to this file for packet-capture decryption")
	runCmd.Flags().StringVar(&verbose, "verbose", "info", "log verbosity: error, warn, info, diag")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// splitCommaFlag comma-splits every occurrence of a repeatable listen flag.
// Used for --listen-https and --listen-http3, which (unlike --listen-http,
// see singleOccurrenceListFlag) aggregate across repeated occurrences.
func splitCommaFlag(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// singleOccurrenceListFlag implements pflag.Value for --listen-http. The
// original CLI reports "must have a single value" if the flag is given more
// than once, while still comma-splitting the list within that one
// occurrence (§9 open question — preserve the quirk rather than "fix" it
// into an aggregating repeatable flag).
type singleOccurrenceListFlag struct {
	name   string
	values *[]string
	isSet  bool
}

func (f *singleOccurrenceListFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

func (f *singleOccurrenceListFlag) Set(raw string) error {
	if f.isSet {
		return fmt.Errorf("--%s must have a single value", f.name)
	}
	f.isSet = true
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*f.values = append(*f.values, part)
		}
	}
	return nil
}

func (f *singleOccurrenceListFlag) Type() string { return "stringList" }
