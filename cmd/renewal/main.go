package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/clock"
	"github.com/railzwaylabs/renewal/internal/config"
	"github.com/railzwaylabs/renewal/internal/migration"
	"github.com/railzwaylabs/renewal/internal/observability"
	"github.com/railzwaylabs/renewal/internal/payment"
	"github.com/railzwaylabs/renewal/internal/redis"
	"github.com/railzwaylabs/renewal/internal/renewal"
	"github.com/railzwaylabs/renewal/internal/renewal/calculator"
	"github.com/railzwaylabs/renewal/internal/renewal/domain"
	"github.com/railzwaylabs/renewal/internal/scheduler"
	"github.com/railzwaylabs/renewal/internal/server"
	"github.com/railzwaylabs/renewal/internal/subscription"
	"github.com/railzwaylabs/renewal/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "renewal",
		Short:         "Subscription renewal service",
		Version:       readVersionFromEnv(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newAllCmd(), newQuoteCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the auto-renewal scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runServe()
			return nil
		},
	}
}

type quoteFlags struct {
	price   string
	period  string
	end     string
	taxRate string
}

func newQuoteCmd() *cobra.Command {
	var f quoteFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a renewal without touching the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.price, "price", "", "monthly base price, e.g. 49.99")
	cmd.Flags().StringVar(&f.period, "period", string(domain.PeriodOneMonth), "renewal period: 1-month, 3-months, 6-months or 1-year")
	cmd.Flags().StringVar(&f.end, "end", "", "current end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.taxRate, "tax-rate", "", "tax rate override, e.g. 0.10")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func runQuote(out io.Writer, f quoteFlags) error {
	price, err := calculator.ParsePrice(f.price)
	if err != nil {
		return fmt.Errorf("--price: %w", err)
	}
	period, err := domain.ParsePeriod(f.period)
	if err != nil {
		return fmt.Errorf("--period: %w", err)
	}
	end, err := time.Parse("2006-01-02", strings.TrimSpace(f.end))
	if err != nil {
		return fmt.Errorf("--end: %w", domain.ErrInvalidEndDate)
	}

	var opts []calculator.Option
	if strings.TrimSpace(f.taxRate) != "" {
		rate, err := calculator.ParsePrice(f.taxRate)
		if err != nil {
			return fmt.Errorf("--tax-rate: %w", domain.ErrInvalidTaxRate)
		}
		opts = append(opts, calculator.WithTaxRate(rate))
	}

	quote, err := calculator.Quote(price, period, end, opts...)
	if err != nil {
		return err
	}
	return printQuote(out, quote)
}

func printQuote(out io.Writer, q domain.RenewalQuote) error {
	display := q.Rounded(2)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "period\t%s (%d months)\n", q.Period, q.Months)
	fmt.Fprintf(w, "subtotal\t%s\n", display.Subtotal.StringFixed(2))
	fmt.Fprintf(w, "discount\t-%s (%s%%)\n", display.Discount.StringFixed(2), q.DiscountRate.Shift(2).String())
	fmt.Fprintf(w, "tax\t%s (%s%%)\n", display.Tax.StringFixed(2), q.TaxRate.Shift(2).String())
	fmt.Fprintf(w, "total\t%s\n", display.Total.StringFixed(2))
	fmt.Fprintf(w, "new expiry\t%s\n", q.NewExpiryDate.Format("2006-01-02"))
	return w.Flush()
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		observability.WithZapLogger(),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		config.Module,
		observability.Module,
		observability.WithZapLogger(),
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		subscription.Module,
		payment.Module,
		renewal.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
