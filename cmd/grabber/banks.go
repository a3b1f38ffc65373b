package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Boelensman1/beancount-support/pkg/store"
)

func newListBanksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-banks [country]",
		Short: "List the banks that can be connected in a country",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var country string
			if len(args) == 1 {
				country = args[0]
			} else {
				answer, err := a.prompt("Country code")
				if err != nil {
					return err
				}
				country = answer
			}
			if len(country) != 2 {
				return fmt.Errorf("country code must be two letters, got %q", country)
			}

			client, err := a.newAPI()
			if err != nil {
				return err
			}
			institutions, err := client.ListInstitutions(cmd.Context(), strings.ToUpper(country))
			if err != nil {
				return err
			}

			a.printf("Bank name: Bank id\n")
			a.printf("---------------------\n")
			for _, inst := range institutions {
				a.printf("%s: %s\n", inst.Name, inst.ID)
			}
			return nil
		},
	}
}

func newListAddedBanksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-added-banks",
		Short: "List the banks that have been added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range a.banks.GetBanks() {
				a.printf("%s\n", b.Name)
			}
			return nil
		},
	}
}

func newAddBankCmd(a *app) *cobra.Command {
	var requisitionID string

	cmd := &cobra.Command{
		Use:   "add-bank <name> <institutionId>",
		Short: "Connect a bank and store its accounts",
		Long: `Connect a bank and store its accounts under name.

The name is usually the beancount account the transactions belong to, for
example Assets:ING. Use list-banks to find the institution id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, institutionID := args[0], args[1]
			if _, err := a.banks.GetBankByName(name); err == nil {
				return &store.ConflictError{Kind: "bank", Name: name}
			}

			client, err := a.newAPI()
			if err != nil {
				return err
			}
			reqID, accounts, err := a.connect(cmd.Context(), client, institutionID, requisitionID)
			if err != nil {
				return err
			}

			if err := a.banks.AddBank(store.Bank{
				Name:                      name,
				InstitutionID:             institutionID,
				RequisitionID:             reqID,
				Accounts:                  accounts,
				EndUserAgreementValidTill: a.agreementValidTill(),
			}); err != nil {
				return err
			}
			a.printf("[%s] added with %d account(s)\n", name, len(accounts))
			return nil
		},
	}

	cmd.Flags().StringVar(&requisitionID, "requisition", "", "use an existing requisition id instead of creating one")
	return cmd
}

func newReconnectBankCmd(a *app) *cobra.Command {
	var requisitionID string

	cmd := &cobra.Command{
		Use:   "reconnect-bank <name>",
		Short: "Renew the end user agreement of a bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newAPI()
			if err != nil {
				return err
			}
			return a.reconnect(cmd, client, args[0], requisitionID)
		},
	}

	cmd.Flags().StringVar(&requisitionID, "requisition", "", "use an existing requisition id instead of creating one")
	return cmd
}

func (a *app) reconnect(cmd *cobra.Command, client bankAPI, name, requisitionID string) error {
	bank, err := a.banks.GetBankByName(name)
	if err != nil {
		return err
	}

	reqID, accounts, err := a.connect(cmd.Context(), client, bank.InstitutionID, requisitionID)
	if err != nil {
		return err
	}

	validTill := a.agreementValidTill()
	if err := a.banks.UpdateBank(name, func(b *store.Bank) {
		b.RequisitionID = reqID
		b.Accounts = accounts
		b.EndUserAgreementValidTill = validTill
	}); err != nil {
		return err
	}
	a.printf("[%s] reconnected\n", name)
	return nil
}
