package main

import (
	"github.com/spf13/cobra"
)

func newAddGroupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-group <name>",
		Short: "Add an empty group of banks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.banks.AddGroup(args[0]); err != nil {
				return err
			}
			a.printf("Group %s added\n", args[0])
			return nil
		},
	}
}

func newAddBanksToGroupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-banks-to-group <group> <bank>...",
		Short: "Add banks to a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.banks.AddBanksToGroup(args[0], args[1:]); err != nil {
				return err
			}
			group, err := a.banks.GetGroupByName(args[0])
			if err != nil {
				return err
			}
			a.printf("Group %s: %d bank(s)\n", group.Name, len(group.BankNames))
			return nil
		},
	}
}
