// Command mailgated runs a standalone mailgate server that logs accepted
// mail instead of delivering it, for smoke-testing the engine.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/haldor/mailgate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	addr := flag.String("addr", ":2525", "address to listen on")
	name := flag.String("name", "mailgate.local", "server name used in greetings")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	builder := mailgate.New(*name).
		Addr(*addr).
		Logger(logger).
		Callbacks(mailgate.Callbacks{
			OnData: func(ctx context.Context, s *mailgate.Session, r io.Reader) (string, error) {
				n, err := io.Copy(io.Discard, r)
				if err != nil {
					return "", err
				}
				logger.Info("message accepted", "session", s.ID, "bytes", n, "rcpt", len(s.Envelope.RcptTo))
				return s.ID, nil
			},
		})

	if *metricsAddr != "" {
		builder = builder.Metrics(prometheus.DefaultRegisterer)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Error("metrics server exited", "err", http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	srv, err := builder.Build()
	if err != nil {
		logger.Error("failed to build server", "err", err)
		os.Exit(1)
	}

	logger.Info("listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && err != mailgate.ErrServerClosed {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}
