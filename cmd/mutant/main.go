// Command mutant is a CLI for a private, mutable key-value store layered
// over content-addressed, owner-signed scratchpads.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to every component via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mutant"
	"mutant/internal/backend"
	"mutant/internal/events"
	"mutant/internal/home"
	"mutant/internal/logging"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
	"mutant/internal/settings"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "mutant",
		Short: "Private, mutable key-value store over content-addressed scratchpads",
	}
	rootCmd.PersistentFlags().String("home", "", "home directory (default: platform config dir)")
	rootCmd.PersistentFlags().String("wallet-id", "default", "wallet identifier, namespaces the local cache and pad storage")

	rootCmd.AddCommand(
		newPutCmd(logger),
		newGetCmd(logger),
		newRmCmd(logger),
		newLsCmd(logger),
		newStatsCmd(logger),
		newSyncCmd(logger),
		newResetCmd(logger),
		newPurgeCmd(logger),
		newReserveCmd(logger),
		newImportCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// resolveHome returns a Dir from the --home flag, the MUTANT_HOME
// environment variable, or the platform default, in that order.
func resolveHome(cmd *cobra.Command) (home.Dir, error) {
	flagValue, _ := cmd.Flags().GetString("home")
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	if envValue := os.Getenv("MUTANT_HOME"); envValue != "" {
		return home.New(envValue), nil
	}
	return home.Default()
}

// openStore loads settings, builds the configured NetworkAdapter and opens
// the MasterIndex for the wallet named by --wallet-id. Every data command
// shares this setup.
func openStore(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (*mutant.MutAnt, error) {
	hd, err := resolveHome(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	if err := hd.EnsureExists(); err != nil {
		return nil, err
	}

	walletID, _ := cmd.Flags().GetString("wallet-id")

	s, err := settings.Load(hd.ConfigPath())
	if err != nil {
		return nil, err
	}
	if s.WalletPrivateKeyHex == "" {
		s.WalletPrivateKeyHex = os.Getenv("MUTANT_WALLET_PRIVATE_KEY")
	}
	if s.WalletPrivateKeyHex == "" {
		return nil, errors.New("no wallet private key configured; run 'mutant import <private-key>' first, or set MUTANT_WALLET_PRIVATE_KEY")
	}

	adapter, err := backend.Open(ctx, s, hd, walletID)
	if err != nil {
		return nil, err
	}

	return mutant.Open(ctx, adapter, s.WalletPrivateKeyHex,
		mutant.WithLogger(logger),
		mutant.WithCachePath(hd.IndexCachePath(walletID)),
		mutant.WithScratchpadSize(s.ScratchpadSize),
	)
}

func progressCallback(cmd *cobra.Command) events.PutCallback {
	return func(_ context.Context, e events.PutEvent) (bool, error) {
		switch ev := e.(type) {
		case events.PutStarting:
			fmt.Fprintf(cmd.ErrOrStderr(), "writing %d chunk(s)...\n", ev.TotalChunks)
		case events.PutChunkWritten:
			fmt.Fprintf(cmd.ErrOrStderr(), "  chunk %d written\n", ev.ChunkIndex)
		case events.PutComplete:
			fmt.Fprintln(cmd.ErrOrStderr(), "done")
		}
		return true, nil
	}
}

func fetchProgressCallback(cmd *cobra.Command) events.GetCallback {
	return func(_ context.Context, e events.GetEvent) (bool, error) {
		switch ev := e.(type) {
		case events.GetStarting:
			fmt.Fprintf(cmd.ErrOrStderr(), "fetching %d chunk(s)...\n", ev.TotalChunks)
		case events.GetChunkFetched:
			fmt.Fprintf(cmd.ErrOrStderr(), "  chunk %d fetched\n", ev.ChunkIndex)
		}
		return true, nil
	}
}

func newPutCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store or overwrite the value under key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openStore(ctx, cmd, logger)
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 2 {
				data = []byte(args[1])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read value from stdin: %w", err)
				}
			}

			force, _ := cmd.Flags().GetBool("force")
			cb := progressCallback(cmd)
			if force {
				err = m.Update(ctx, args[0], data, cb)
			} else {
				err = m.Store(ctx, args[0], data, cb)
				if errors.Is(err, mutanterr.ErrKeyAlreadyExists) {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
			}
			return err
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing key")
	return cmd
}

func newGetCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openStore(ctx, cmd, logger)
			if err != nil {
				return err
			}
			data, err := m.Fetch(ctx, args[0], fetchProgressCallback(cmd))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newRmCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove key and return its pads to the free list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openStore(ctx, cmd, logger)
			if err != nil {
				return err
			}
			return m.Remove(ctx, args[0])
		},
	}
}

func newLsCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openStore(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			long, _ := cmd.Flags().GetBool("long")
			if !long {
				for _, k := range m.ListKeys() {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			}
			for _, d := range m.ListDetails() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\tcomplete=%v\tmodified=%s\n",
					d.Key, d.DataSize, d.IsComplete, d.Modified.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	cmd.Flags().Bool("long", false, "show size, completeness and modification time")
	return cmd
}

func newStatsCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate pad usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openStore(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			stats, err := m.GetStats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keys:           %d\n", stats.TotalKeys)
			fmt.Fprintf(cmd.OutOrStdout(), "occupied pads:  %d\n", stats.OccupiedPads)
			fmt.Fprintf(cmd.OutOrStdout(), "free pads:      %d\n", stats.FreePads)
			fmt.Fprintf(cmd.OutOrStdout(), "pending pads:   %d\n", stats.PendingPads)
			fmt.Fprintf(cmd.OutOrStdout(), "total data:     %d bytes\n", stats.TotalDataSize)
			fmt.Fprintf(cmd.OutOrStdout(), "scratchpad size: %d bytes\n", stats.ScratchpadSize)
			return nil
		},
	}
}

func newSyncCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge the local index with the remote index scratchpad",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openStore(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			pushForce, _ := cmd.Flags().GetBool("push-force")
			return m.Sync(cmd.Context(), pushForce)
		},
	}
	cmd.Flags().Bool("push-force", false, "write the local index verbatim, skipping the merge")
	return cmd
}

func newResetCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard every key, free pad and pending-verification entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openStore(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			return m.Reset(cmd.Context())
		},
	}
}

func newPurgeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Resolve pending verifications and drop free pads gone from the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openStore(ctx, cmd, logger)
			if err != nil {
				return err
			}
			dropped, err := m.Purge(ctx, func(addr network.Address, confirmed bool) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s confirmed=%v\n", addr.String(), confirmed)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d stale free pad(s)\n", dropped)
			return nil
		},
	}
}

func newReserveCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <n>",
		Short: "Materialize n pads into the free list, reusing already-free pads first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pad count %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			m, err := openStore(ctx, cmd, logger)
			if err != nil {
				return err
			}
			return m.Reserve(ctx, n, progressCallback(cmd))
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <private-key-hex>",
		Short: "Write a hex-encoded wallet private key into the local settings file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hd, err := resolveHome(cmd)
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			if err := hd.EnsureExists(); err != nil {
				return err
			}
			return mutant.Import(hd.ConfigPath(), args[0])
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
