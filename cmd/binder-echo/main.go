// Command binder-echo runs a self-contained demonstration of the binder
// dispatcher: one process binds the well-known context manager and echoes
// every transaction it receives, while one or more client processes send
// it a ping carrying a fresh UUID once a second and log the reply. Every
// process lives in this one address space; the dispatcher is what plays
// the role a kernel binder driver plays for real separate processes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbinder/binder"
	"github.com/openbinder/binder/internal/logging"
	"github.com/openbinder/binder/internal/wire"
)

var rootCmd = &cobra.Command{
	Use:   "binder-echo",
	Short: "Run a context manager and a fleet of echo clients against the binder dispatcher",
	RunE:  run,
}

func init() {
	rootCmd.Flags().Int("max-threads", 4, "worker pool budget for every opened process")
	rootCmd.Flags().Int("read-capacity", 4096, "byte capacity offered to each read_commands call")
	rootCmd.Flags().Int("clients", 1, "number of client processes pinging the context manager")
	rootCmd.Flags().Duration("ping-interval", time.Second, "delay between pings from each client")
	rootCmd.Flags().String("log-level", "info", "one of debug, info, warn, error")
	rootCmd.Flags().String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled when empty)")

	viper.SetEnvPrefix("BINDER_ECHO")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := parseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	logger := logging.NewLogger(&logging.Config{Level: level, Output: os.Stderr})
	logging.SetDefault(logger)

	var registerer prometheus.Registerer
	if addr := viper.GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		registerer = reg
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer server.Close()
		logger.Info("serving metrics", "addr", addr)
	}

	d := binder.NewDispatcher(&binder.Options{Logger: logger, MetricsRegisterer: registerer})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	maxThreads := viper.GetInt("max-threads")
	readCapacity := viper.GetInt("read-capacity")
	numClients := viper.GetInt("clients")
	pingInterval := viper.GetDuration("ping-interval")

	manager := d.Open(ctx, binder.OpenOptions{PID: 1, EUID: 0, MaxThreads: maxThreads})
	defer manager.Release(ctx)
	if err := manager.SetContextManager(ctx); err != nil {
		return fmt.Errorf("bind context manager: %w", err)
	}
	logger.Info("context manager bound", "pid", uint32(1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		echoLoop(ctx, manager, readCapacity, logger.With("role", "manager"))
	}()

	for i := 0; i < numClients; i++ {
		pid := uint32(100 + i)
		client := d.Open(ctx, binder.OpenOptions{PID: pid, MaxThreads: maxThreads})
		defer client.Release(ctx)
		wg.Add(1)
		go func(pid uint32) {
			defer wg.Done()
			clientLoop(ctx, client, readCapacity, pingInterval, logger.With("role", "client", "pid", pid))
		}(pid)
	}

	wg.Wait()
	return nil
}

// echoLoop drives write_read with an empty write buffer, replying to every
// incoming transaction with its payload unchanged and logging death
// notifications as they arrive.
func echoLoop(ctx context.Context, p *binder.Process, readCapacity int, logger *logging.Logger) {
	for ctx.Err() == nil {
		_, readBuf, err := p.WriteRead(ctx, nil, readCapacity)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("write_read failed", "error", err)
			continue
		}
		if len(readBuf) == 0 {
			continue
		}

		reply, ok := buildEchoReply(readBuf, readCapacity, logger)
		if !ok {
			continue
		}
		if _, _, err := p.WriteRead(ctx, reply, 0); err != nil {
			logger.Error("reply failed", "error", err)
		}
	}
}

// buildEchoReply scans every record in readBuf and, for the first
// BR_TRANSACTION it finds, packs a BC_REPLY carrying the same payload back.
// Other records (BR_SPAWN_LOOPER, BR_DEAD_BINDER) are logged and skipped.
func buildEchoReply(readBuf []byte, capacity int, logger *logging.Logger) ([]byte, bool) {
	r := wire.NewCommandReader(readBuf)
	for r.Len() > 0 {
		op, err := r.ReadOpcode()
		if err != nil {
			return nil, false
		}
		switch op {
		case wire.BRTransaction:
			td, err := r.ReadTransactionData()
			if err != nil {
				logger.Error("malformed transaction record", "error", err)
				return nil, false
			}
			logger.Info("echoing transaction", "sender_pid", td.SenderPID, "bytes", len(td.Data))
			w := wire.NewResponseWriter(capacity)
			w.WriteTransaction(wire.BCReply, &wire.TransactionData{Data: td.Data})
			return w.Bytes(), true
		case wire.BRSpawnLooper:
			logger.Debug("spawn looper requested")
		case wire.BRDeadBinder:
			d, err := r.ReadDeathPayload()
			if err == nil {
				logger.Info("peer died", "cookie", d.Cookie)
			}
		case wire.BRTransactionComplete, wire.BRFailedReply, wire.BRDeadReply:
			// no body to skip
		default:
			return nil, false
		}
	}
	return nil, false
}

// clientLoop sends one ping transaction per interval to the context
// manager (handle 0) carrying a fresh UUID as its payload, then reads and
// logs the matching reply.
func clientLoop(ctx context.Context, p *binder.Process, readCapacity int, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cookie := uuid.New().String()
		w := wire.NewResponseWriter(512)
		w.WriteTransaction(wire.BCTransaction, &wire.TransactionData{Data: []byte(cookie)})
		if _, _, err := p.WriteRead(ctx, w.Bytes(), 0); err != nil {
			logger.Error("send failed", "error", err)
			continue
		}

		_, readBuf, err := p.WriteRead(ctx, nil, readCapacity)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("read failed", "error", err)
			continue
		}
		logReply(readBuf, logger)

		stats := p.Stats()
		logger.Debug("process stats", "loopers", stats.NumLoopers, "queue_depth", stats.QueueDepth)
	}
}

func logReply(readBuf []byte, logger *logging.Logger) {
	r := wire.NewCommandReader(readBuf)
	for r.Len() > 0 {
		op, err := r.ReadOpcode()
		if err != nil {
			return
		}
		switch op {
		case wire.BRTransactionComplete:
			// delivery acknowledged, reply still pending
		case wire.BRReply:
			td, err := r.ReadTransactionData()
			if err != nil {
				return
			}
			logger.Info("received reply", "bytes", len(td.Data), "payload", string(td.Data))
		case wire.BRFailedReply, wire.BRDeadReply:
			logger.Warn("transaction did not complete", "op", wire.ReplyOpcodeName(op))
		default:
			return
		}
	}
}

func parseLevel(s string) (logging.LogLevel, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
