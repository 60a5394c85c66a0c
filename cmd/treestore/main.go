// chunkstore CLI
// Operates one store file from the command line: put/get/rm/scan keys
// in a named map, trigger compaction, roll back to an earlier version,
// and report space-accounting stats.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nainya/chunkstore/internal/logger"
	"github.com/nainya/chunkstore/internal/metrics"
	"github.com/nainya/chunkstore/internal/observability"
	"github.com/nainya/chunkstore/pkg/mvmap"
	"github.com/nainya/chunkstore/pkg/store"
)

var (
	dbPath              string
	readOnly            bool
	encryptPassword     string
	compress            bool
	cacheSizeBytes      int64
	retentionSeconds    int64
	autoCompactFillRate int
	metricsAddr         string
	log                 *logger.Logger
	met                 *metrics.Metrics
)

func main() {
	log = logger.GetGlobalLogger()
	met = metrics.NewMetrics()

	root := &cobra.Command{
		Use:   "treestore",
		Short: "Operate a chunkstore file",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "treestore.db", "store file path")
	root.PersistentFlags().BoolVar(&readOnly, "read-only", false, "open the store read-only")
	root.PersistentFlags().StringVar(&encryptPassword, "encrypt", "", "encryption password (empty disables encryption)")
	root.PersistentFlags().BoolVar(&compress, "compress", false, "enable chunk-body compression")
	root.PersistentFlags().Int64Var(&cacheSizeBytes, "cache-size", 16<<20, "page cache byte budget")
	root.PersistentFlags().Int64Var(&retentionSeconds, "retention", 45, "retention window in seconds")
	root.PersistentFlags().IntVar(&autoCompactFillRate, "auto-compact", 0, "target fill rate to compact toward on close (0 disables)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on while the open command runs (empty disables; other commands ignore it)")

	root.AddCommand(
		newOpenCmd(),
		newPutCmd(),
		newGetCmd(),
		newRmCmd(),
		newScanCmd(),
		newRollbackCmd(),
		newCompactCmd(),
		newStatCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error("command failed").Err(err).Send()
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	b := store.NewBuilder(dbPath).
		CacheSize(cacheSizeBytes).
		RetentionTime(retentionSeconds).
		AutoCompactFillRate(autoCompactFillRate)
	if readOnly {
		b = b.ReadOnly()
	}
	if encryptPassword != "" {
		b = b.Encrypt([]byte(encryptPassword))
	}
	if compress {
		b = b.Compress()
	}

	s, err := b.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	log.LogStoreOpen(dbPath, s.CurrentVersion(), readOnly)
	return s, nil
}

func closeStore(s *store.Store) {
	log.LogStoreClose(dbPath)
	if err := s.Close(); err != nil {
		log.Error("close failed").Err(err).Send()
	}
}

// runWithMetrics starts the optional observability server alongside fn,
// shutting it down gracefully on SIGINT/SIGTERM or fn's return.
func runWithMetrics(fn func() error) error {
	if metricsAddr == "" {
		return fn()
	}

	obs := observability.NewServer(metricsAddr, log)
	go func() {
		if err := obs.Start(); err != nil {
			log.Error("observability server stopped").Err(err).Send()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		shutdownObs(obs)
		return err
	case <-sigCh:
		log.Info("shutting down on signal").Send()
		shutdownObs(obs)
		return <-done
	}
}

func shutdownObs(obs *observability.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(ctx)
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open (or create) the store and report its current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithMetrics(func() error {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer closeStore(s)
				fmt.Printf("version=%d lastChunk=%d\n", s.CurrentVersion(), s.LastChunkID())
				return nil
			})
		},
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <map> <key> <value>",
		Short: "Insert or overwrite a key in a map, then commit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			m, err := s.OpenMap(args[0], mvmap.StringCodec{}, mvmap.StringCodec{})
			if err != nil {
				return err
			}
			if err := m.Put(args[1], args[2]); err != nil {
				return err
			}

			start := time.Now()
			version, err := s.Commit()
			met.RecordCommit(status(err), time.Since(start), 0)
			if err != nil {
				return err
			}
			fmt.Printf("version=%d\n", version)
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <map> <key>",
		Short: "Look up a key in a map",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			m, err := s.OpenMap(args[0], mvmap.StringCodec{}, mvmap.StringCodec{})
			if err != nil {
				return err
			}
			val, found, err := m.Get(args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("key %q not found in map %q", args[1], args[0])
			}
			fmt.Println(val)
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <map> <key>",
		Short: "Delete a key from a map, then commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			m, err := s.OpenMap(args[0], mvmap.StringCodec{}, mvmap.StringCodec{})
			if err != nil {
				return err
			}
			removed, err := m.Remove(args[1])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("key %q not found in map %q", args[1], args[0])
			}

			version, err := s.Commit()
			if err != nil {
				return err
			}
			fmt.Printf("version=%d\n", version)
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	var fromKey string
	cmd := &cobra.Command{
		Use:   "scan <map>",
		Short: "List all entries in a map in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			m, err := s.OpenMap(args[0], mvmap.StringCodec{}, mvmap.StringCodec{})
			if err != nil {
				return err
			}

			var start any
			if fromKey != "" {
				start = fromKey
			}
			return m.Scan(start, func(key, val any) bool {
				fmt.Printf("%s\t%s\n", key, val)
				return true
			})
		},
	}
	cmd.Flags().StringVar(&fromKey, "from", "", "start scanning from this key (inclusive)")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <version>",
		Short: "Discard every version after the given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			err = s.RollbackTo(v)
			met.RecordRollback(status(err))
			log.LogRollback(v, err)
			return err
		},
	}
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <fillRate>",
		Short: "Compact cold chunks toward the given aggregate fill rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid fill rate %q: %w", args[0], err)
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			start := time.Now()
			did, err := s.Compact(rate)
			met.RecordCompaction(status(err), time.Since(start), 0, 0)
			if err != nil {
				return err
			}
			fmt.Printf("compacted=%t\n", did)
			return nil
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Report space-accounting and version stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(s)

			st := s.Stat()
			met.UpdateSpaceStats(st.CurrentVersion, st.ChunkCount, st.MaxLength, st.MaxLengthLive, 0)
			met.UpdateCacheStats(st.CacheBytes)

			fmt.Printf("version=%d chunks=%d maxLength=%d maxLengthLive=%d cacheBytes=%d\n",
				st.CurrentVersion, st.ChunkCount, st.MaxLength, st.MaxLengthLive, st.CacheBytes)
			return nil
		},
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
