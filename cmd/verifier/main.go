package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rl1809/realtime-inventory/internal/bootstrap"
	"github.com/rl1809/realtime-inventory/internal/config"
	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/core/service"
	"github.com/rl1809/realtime-inventory/internal/logger"
)

var (
	cfg  *config.Config
	logg *logger.Logger

	verifyTimeout  time.Duration
	verifyPoll     time.Duration
	verifyProduct  string
	verifyStore    string
	verifyQuantity int
)

var rootCmd = &cobra.Command{
	Use:   "verifier",
	Short: "End-to-end checks against the inventory pipeline",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logg = logger.New(logger.Options{
			ServiceName: "inventory-verifier",
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			Output:      os.Stderr,
		})
		return nil
	},
	SilenceUsage: true,
}

// verifyCmd submits synthetic sales and waits for the store to reflect them
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Submit test transactions and confirm they are applied",
	Long: `Submit synthetic sales to the transaction log and poll the inventory store
until each one is reflected or the timeout elapses.

Without --product the two default scenarios run: P005 at Miami-Store-1
(expected CRITICAL) and P004 at Miami-Store-1 (expected LOW).`,
	RunE: runVerify,
}

// scanCmd prints the current inventory with derived status
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print current inventory and stock status",
	RunE:  runScan,
}

func init() {
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 0, "per-transaction timeout (default from INVENTORY_VERIFY_TIMEOUT)")
	verifyCmd.Flags().DurationVar(&verifyPoll, "poll", 0, "poll interval (default from INVENTORY_VERIFY_POLL_INTERVAL)")
	verifyCmd.Flags().StringVar(&verifyProduct, "product", "", "product id for a single custom scenario")
	verifyCmd.Flags().StringVar(&verifyStore, "store", "Miami-Store-1", "store location for --product")
	verifyCmd.Flags().IntVar(&verifyQuantity, "quantity", 1, "units sold for --product")

	rootCmd.AddCommand(verifyCmd, scanCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.Stream.Driver == config.StoreDriverMemory {
		return errors.New("verify needs a shared transaction log; set INVENTORY_STREAM_DRIVER=redis")
	}
	backends, err := bootstrap.Open(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer backends.Close()

	timeout, poll := cfg.Verifier.Timeout, cfg.Verifier.PollInterval
	if verifyTimeout > 0 {
		timeout = verifyTimeout
	}
	if verifyPoll > 0 {
		poll = verifyPoll
	}

	scenarios := service.DefaultScenarios()
	if verifyProduct != "" {
		scenarios = []service.Scenario{{
			Description:   fmt.Sprintf("%s at %s", verifyProduct, verifyStore),
			ProductID:     verifyProduct,
			StoreLocation: verifyStore,
			Quantity:      verifyQuantity,
		}}
	}

	thresholds := domain.Thresholds{CriticalFloor: cfg.Applier.CriticalFloor}
	if err := printInventory(ctx, backends, thresholds); err != nil {
		return err
	}

	verifier := service.NewVerifier(backends.Log, backends.Store, thresholds, logg, nil)
	results := verifier.VerifyScenarios(ctx, scenarios, timeout, poll)

	failed := 0
	for i, r := range results {
		fmt.Printf("\n---------- TEST #%d: %s ----------\n", i+1, r.Scenario.Description)
		if r.Report != nil {
			fmt.Printf("Transaction:      %s\n", r.Report.TransactionID)
			fmt.Printf("Position:         %s\n", r.Report.Position)
		}
		switch {
		case r.Err == nil:
			fmt.Printf("Stock:            %d -> %d\n", r.Report.OldStock, r.Report.NewStock)
			fmt.Printf("Status:           %s\n", r.Report.Status)
			fmt.Printf("Latency:          %v\n", r.Report.Elapsed.Round(time.Millisecond))
			fmt.Println("PASS: update confirmed")
		case errors.Is(r.Err, domain.ErrTimedOut):
			failed++
			fmt.Printf("FAIL: not applied within %v\n", timeout)
			if last := r.Report.LastObserved; last != nil {
				fmt.Printf("Last observed:    stock %d, last transaction %s\n", last.CurrentStock, last.LastTransactionID)
			}
		default:
			failed++
			fmt.Printf("FAIL: %v\n", r.Err)
		}
	}

	fmt.Println("\n========== VERIFICATION RESULTS ==========")
	fmt.Printf("Passed:           %d\n", len(results)-failed)
	fmt.Printf("Failed:           %d\n", failed)
	fmt.Println("==========================================")
	if failed > 0 || len(results) < len(scenarios) {
		return fmt.Errorf("%d of %d verifications failed", len(scenarios)-len(results)+failed, len(scenarios))
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	backends, err := bootstrap.Open(cmd.Context(), cfg, logg)
	if err != nil {
		return err
	}
	defer backends.Close()

	return printInventory(cmd.Context(), backends, domain.Thresholds{CriticalFloor: cfg.Applier.CriticalFloor})
}

func printInventory(ctx context.Context, backends *bootstrap.Backends, thresholds domain.Thresholds) error {
	records, err := backends.Store.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan inventory: %w", err)
	}
	fmt.Println("========== CURRENT INVENTORY ==========")
	for _, r := range records {
		fmt.Printf("%-6s %-18s %4d units  reorder %-4d %s\n",
			r.ProductID, r.StoreLocation, r.CurrentStock, r.ReorderPoint, thresholds.StatusOf(r))
	}
	fmt.Println("========================================")
	return nil
}
