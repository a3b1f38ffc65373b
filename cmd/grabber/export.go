package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Boelensman1/beancount-support/pkg/grabber"
)

func newGetCSVCmd(a *app) *cobra.Command {
	var asGroup, asBank bool

	cmd := &cobra.Command{
		Use:   "get-csv <name>",
		Short: "Export the new transactions of a bank or group",
		Long: `Export the transactions booked since the previous export, up to and
including yesterday. The name is a bank unless --group is given.

The output format is set by EXPORT_FORMAT (csv, json or postgres).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newAPI()
			if err != nil {
				return err
			}

			exporter := grabber.New(a.banks, client, a.registry, grabber.Config{
				ExportDir:    a.cfg.ExportDir,
				Format:       a.cfg.ExportFormat,
				WriterConfig: a.cfg.WriterConfig,
			}, a.logger)

			if asGroup {
				results, err := exporter.ExportGroup(cmd.Context(), args[0])
				for _, r := range results {
					a.printResult(r)
				}
				if errors.Is(err, grabber.ErrAgreementExpired) {
					a.printf("Some agreements expired; run reconnect-bank for those banks\n")
				}
				return err
			}

			name := args[0]
			result, err := exporter.ExportBank(cmd.Context(), name)
			if errors.Is(err, grabber.ErrAgreementExpired) {
				a.printf("[%s] end user agreement expired, reconnecting\n", name)
				if err := a.reconnect(cmd, client, name, ""); err != nil {
					return err
				}
				result, err = exporter.ExportBank(cmd.Context(), name)
			}
			if err != nil {
				return err
			}
			a.printResult(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asGroup, "group", false, "name is a group")
	cmd.Flags().BoolVar(&asBank, "bank", false, "name is a bank (default)")
	cmd.MarkFlagsMutuallyExclusive("group", "bank")
	return cmd
}

func (a *app) printResult(r *grabber.Result) {
	switch {
	case r.From.After(r.To):
		a.printf("[%s] No new dates to import\n", r.Bank)
	case r.Transactions == 0:
		a.printf("[%s] No transactions between %s and %s\n", r.Bank, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	case r.File == "":
		a.printf("[%s] Exported %d transaction(s)\n", r.Bank, r.Transactions)
	default:
		a.printf("[%s] Wrote %d transaction(s) to %s\n", r.Bank, r.Transactions, r.File)
	}
}
