// Command grabber connects bank accounts through the GoCardless bank account
// data API and exports their booked transactions.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Boelensman1/beancount-support/internal/plugins"
	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/config"
	"github.com/Boelensman1/beancount-support/pkg/gocardless"
	"github.com/Boelensman1/beancount-support/pkg/logging"
	csvplugin "github.com/Boelensman1/beancount-support/pkg/plugins/writers/csv"
	jsonplugin "github.com/Boelensman1/beancount-support/pkg/plugins/writers/json"
	pgplugin "github.com/Boelensman1/beancount-support/pkg/plugins/writers/postgres"
	"github.com/Boelensman1/beancount-support/pkg/store"
)

// agreementDays is how long an end user agreement stays valid.
const agreementDays = 90

// bankAPI is the part of the GoCardless client the commands use.
type bankAPI interface {
	api.TransactionSource
	ListInstitutions(ctx context.Context, country string) ([]gocardless.Institution, error)
	CreateRequisition(ctx context.Context, institutionID, redirect string) (*gocardless.Requisition, error)
	ListAccounts(ctx context.Context, requisitionID string) ([]string, error)
}

// app holds state shared by the subcommands.
type app struct {
	configFile string

	cfg      *config.Config
	logger   *slog.Logger
	banks    *store.BankStore
	registry *plugins.Registry

	in     *bufio.Scanner
	out    io.Writer
	now    func() time.Time
	newAPI func() (bankAPI, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
		now: time.Now,
	}
	a.newAPI = a.client

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "grabber",
		Short: "Export bank transactions for import into beancount",
		Long: `grabber connects bank accounts through the GoCardless bank account
data API and exports their booked transactions to files that can be imported
into a beancount ledger.

Example:
  grabber list-banks NL
  grabber add-bank Assets:ING ING_INGBNL2A
  grabber get-csv Assets:ING`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "JSON config file (environment variables take precedence)")

	root.AddCommand(
		newListBanksCmd(a),
		newListAddedBanksCmd(a),
		newAddBankCmd(a),
		newReconnectBankCmd(a),
		newAddGroupCmd(a),
		newAddBanksToGroupCmd(a),
		newGetCSVCmd(a),
		newStatusCmd(a),
	)
	return root
}

// setup loads configuration and opens the bank store.
func (a *app) setup() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.Setup(logging.FromStrings(cfg.LogLevel, cfg.LogFormat))

	banks, err := store.OpenBankStore(cfg.GrabberDBPath)
	if err != nil {
		return err
	}
	a.banks = banks

	registry, err := newRegistry()
	if err != nil {
		return err
	}
	a.registry = registry
	return nil
}

func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()
	for _, p := range []plugins.WriterPlugin{&csvplugin.Plugin{}, &jsonplugin.Plugin{}, &pgplugin.Plugin{}} {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (a *app) client() (bankAPI, error) {
	if err := a.cfg.Validate("GOCARDLESS_SECRET_ID", "GOCARDLESS_SECRET_KEY"); err != nil {
		return nil, err
	}
	client, err := gocardless.New(gocardless.Config{
		SecretID:  a.cfg.GoCardlessSecretID,
		SecretKey: a.cfg.GoCardlessSecretKey,
		BaseURL:   a.cfg.GoCardlessBaseURL,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// prompt reads one trimmed line from stdin.
func (a *app) prompt(label string) (string, error) {
	a.printf("%s: ", label)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(a.in.Text()), nil
}

// connect links the accounts of an institution and returns the requisition
// id and account ids. Without requisitionID a new requisition is created
// and the user is asked for the id once they have authorized access.
func (a *app) connect(ctx context.Context, client bankAPI, institutionID, requisitionID string) (string, []string, error) {
	if requisitionID == "" {
		req, err := client.CreateRequisition(ctx, institutionID, a.cfg.GoCardlessRedirect)
		if err != nil {
			return "", nil, err
		}
		a.printf("Open this link to authorize access:\n  %s\n", req.Link)
		answer, err := a.prompt(fmt.Sprintf("Press enter when done, or paste the requisition id [%s]", req.ID))
		if err != nil {
			return "", nil, err
		}
		requisitionID = req.ID
		if answer != "" {
			requisitionID = answer
		}
	}

	accounts, err := client.ListAccounts(ctx, requisitionID)
	if err != nil {
		return "", nil, err
	}
	if len(accounts) == 0 {
		return "", nil, fmt.Errorf("requisition %s has no linked accounts", requisitionID)
	}
	return requisitionID, accounts, nil
}

func (a *app) agreementValidTill() *time.Time {
	t := a.now().AddDate(0, 0, agreementDays)
	return &t
}
