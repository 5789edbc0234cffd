package paygwctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/paygw-mollie/internal/di"
	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/mollie"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
	"github.com/sandeepkv93/paygw-mollie/internal/tools/common"
	"github.com/sandeepkv93/paygw-mollie/internal/tools/migrate"
	"github.com/sandeepkv93/paygw-mollie/internal/tools/ui"
)

type synchronizer interface {
	Synchronize(ctx context.Context, source string, snapshot *mollie.Payment, record *domain.Transaction) (*mollie.Payment, error)
}

type methodLister interface {
	GetMethods(ctx context.Context, component, paymentArea string, itemID uint) ([]service.MethodView, error)
}

type expiredCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type cacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

type ledgerReader interface {
	FindPayment(ctx context.Context, id uint) (*domain.LedgerPayment, error)
}

type backend struct {
	transactions repository.TransactionRepository
	reconciler   synchronizer
	payments     methodLister
	idempotency  expiredCleaner
	methodsCache cacheInvalidator
	ledger       ledgerReader
	close        func()
}

type loader func(envFile string) (*backend, error)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

func loadBackend(envFile string) (*backend, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	op, cleanup, err := di.InitializeOperator()
	if err != nil {
		return nil, err
	}
	return &backend{
		transactions: op.Transactions,
		reconciler:   op.Reconciler,
		payments:     op.Payments,
		idempotency:  op.Idempotency,
		methodsCache: op.MethodsCache,
		ledger:       op.Ledger,
		close:        cleanup,
	}, nil
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(loadBackend)
}

func newRootCommand(load loader) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "paygwctl",
		Short:         "Operate the Mollie payment gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading configuration")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print a JSON result instead of the interactive view")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "overall command timeout")

	root.AddCommand(migrate.NewRootCommand())
	root.AddCommand(newSyncCommand(opts, load))
	root.AddCommand(newListCommand(opts, load))
	root.AddCommand(newMethodsCommand(opts, load))
	root.AddCommand(newCleanupCommand(opts, load))
	return root
}

func newSyncCommand(opts *options, load loader) *cobra.Command {
	var id uint
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile one transaction with the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return errors.New("--id is required")
			}
			_, err := withBackend(opts, load, fmt.Sprintf("Sync transaction %d", id), func(ctx context.Context, b *backend) ([]string, error) {
				return syncRecord(ctx, b, id)
			})
			return err
		},
	}
	cmd.Flags().UintVar(&id, "id", 0, "internal transaction id")
	return cmd
}

func newListCommand(opts *options, load loader) *cobra.Command {
	q := repository.TransactionListQuery{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := withBackend(opts, load, "Transactions", func(ctx context.Context, b *backend) ([]string, error) {
				return listRecords(ctx, b, q)
			})
			return err
		},
	}
	cmd.Flags().UintVar(&q.UserID, "user", 0, "filter by payer id")
	cmd.Flags().StringVar(&q.Component, "component", "", "filter by component")
	cmd.Flags().StringVar(&q.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&q.Page, "page", repository.DefaultPage, "page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", repository.DefaultPageSize, "page size")
	return cmd
}

func newMethodsCommand(opts *options, load loader) *cobra.Command {
	var (
		component   string
		paymentArea string
		itemID      uint
		refresh     bool
	)
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Show the payment methods offered for an item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if component == "" || paymentArea == "" || itemID == 0 {
				return errors.New("--component, --paymentarea and --itemid are required")
			}
			_, err := withBackend(opts, load, "Payment methods", func(ctx context.Context, b *backend) ([]string, error) {
				if refresh && b.methodsCache != nil {
					if err := b.methodsCache.InvalidateAll(ctx); err != nil {
						return nil, fmt.Errorf("invalidate methods cache: %w", err)
					}
				}
				return listMethods(ctx, b, component, paymentArea, itemID)
			})
			return err
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "component of the payable item")
	cmd.Flags().StringVar(&paymentArea, "paymentarea", "", "payment area of the payable item")
	cmd.Flags().UintVar(&itemID, "itemid", 0, "item id of the payable item")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop cached method lists before asking the provider")
	return cmd
}

func newCleanupCommand(opts *options, load loader) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "cleanup-idempotency",
		Short: "Delete expired idempotency records",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := withBackend(opts, load, "Idempotency cleanup", func(ctx context.Context, b *backend) ([]string, error) {
				return cleanupIdempotency(ctx, b, time.Now().UTC(), batch)
			})
			return err
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 500, "rows deleted per statement")
	return cmd
}

func withBackend(opts *options, load loader, title string, fn func(ctx context.Context, b *backend) ([]string, error)) ([]string, error) {
	b, err := load(opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if b.close != nil {
		defer b.close()
	}
	return run(opts, title, func(ctx context.Context) ([]string, error) {
		return fn(ctx, b)
	})
}

func run(opts *options, title string, fn ui.Action) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if opts.ci {
		details, err := fn(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(ctx, title, fn)
}

func syncRecord(ctx context.Context, b *backend, id uint) ([]string, error) {
	record, err := b.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := record.Status
	snapshot, err := b.reconciler.Synchronize(ctx, domain.CallbackSourceCLI, nil, record)
	if err != nil {
		return nil, err
	}
	details := []string{
		fmt.Sprintf("order %s", record.OrderID),
		fmt.Sprintf("remote status %s", snapshot.Status),
	}
	if before == snapshot.Status {
		details = append(details, "local status unchanged ("+before+")")
	} else {
		details = append(details, fmt.Sprintf("local status %s -> %s", before, snapshot.Status))
	}
	if b.ledger == nil {
		return details, nil
	}
	current, err := b.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PaymentID != nil {
		payment, err := b.ledger.FindPayment(ctx, *current.PaymentID)
		if err != nil {
			return nil, err
		}
		details = append(details, fmt.Sprintf("ledger payment #%d %s %s", payment.ID, payment.Amount.StringFixed(2), payment.Currency))
	}
	return details, nil
}

func listRecords(ctx context.Context, b *backend, q repository.TransactionListQuery) ([]string, error) {
	page, err := b.transactions.ListPaged(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(page.Items)+1)
	for _, tx := range page.Items {
		out = append(out, fmt.Sprintf("#%d %s/%s/%d user=%d order=%s status=%s test=%t",
			tx.ID, tx.Component, tx.PaymentArea, tx.ItemID, tx.UserID, tx.OrderID, tx.Status, tx.TestMode))
	}
	out = append(out, fmt.Sprintf("page %d/%d, %d total", page.Page, page.TotalPages, page.Total))
	return out, nil
}

func listMethods(ctx context.Context, b *backend, component, paymentArea string, itemID uint) ([]string, error) {
	methods, err := b.payments.GetMethods(ctx, component, paymentArea, itemID)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return []string{service.MessageNoPaymentMethods}, nil
	}
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		state := "unavailable"
		if m.Enabled {
			state = "available"
		}
		out = append(out, fmt.Sprintf("%s (%s): %s", m.ID, m.Description, state))
	}
	return out, nil
}

// cleanupIdempotency deletes in batches until a batch comes back short.
func cleanupIdempotency(ctx context.Context, b *backend, now time.Time, batch int) ([]string, error) {
	if batch <= 0 {
		return nil, errors.New("--batch must be > 0")
	}
	var total int64
	for {
		deleted, err := b.idempotency.CleanupExpired(ctx, now, batch)
		if err != nil {
			return nil, err
		}
		total += deleted
		if deleted < int64(batch) {
			break
		}
	}
	return []string{fmt.Sprintf("deleted %d expired idempotency records", total)}, nil
}
