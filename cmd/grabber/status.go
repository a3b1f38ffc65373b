package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration, bank agreements and API connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.runStatus(cmd.Context(), country)
			return nil
		},
	}

	cmd.Flags().StringVar(&country, "country", "NL", "country used for the connectivity check")
	return cmd
}

// runStatus prints a checklist of everything the export needs.
func (a *app) runStatus(ctx context.Context, country string) {
	a.printf("=== Grabber Status ===\n\n")

	allGood := true
	secretsOK := a.checkConfig(&allGood)
	a.checkBanks(&allGood)
	if secretsOK {
		a.checkAPIConnectivity(ctx, country, &allGood)
	}

	a.printf("\n")
	if allGood {
		a.printf("Status: ✓ Ready to export\n\n")
		a.printf("Run 'grabber get-csv <bank>' to export transactions.\n")
	} else {
		a.printf("Status: ✗ Configuration issues detected\n\n")
		a.printf("Fix the issues above, then run 'grabber status' again.\n")
	}
}

func (a *app) checkConfig(allGood *bool) bool {
	if a.configFile != "" {
		a.printf("Config file (%s): ✓ Loaded\n", a.configFile)
	}

	secretsOK := true
	a.printf("GoCardless secrets: ")
	if err := a.cfg.Validate("GOCARDLESS_SECRET_ID", "GOCARDLESS_SECRET_KEY"); err != nil {
		a.printf("✗ %v\n", err)
		*allGood = false
		secretsOK = false
	} else {
		a.printf("✓ Set\n")
	}

	a.printf("Export format (%s): ", a.cfg.ExportFormat)
	plugin, err := a.registry.GetWriter(a.cfg.ExportFormat)
	switch {
	case err != nil:
		a.printf("✗ %v\n", err)
		*allGood = false
	case plugin.Extension() == "":
		a.printf("✓ %s\n", plugin.Description())
	default:
		a.printf("✓ %s\n", plugin.Description())
		a.printf("Export dir (%s): ", a.cfg.ExportDir)
		if info, err := os.Stat(a.cfg.ExportDir); err != nil {
			a.printf("⚠ Not found (created on first export)\n")
		} else if !info.IsDir() {
			a.printf("✗ Not a directory\n")
			*allGood = false
		} else {
			a.printf("✓ Found\n")
		}
	}

	return secretsOK
}

func (a *app) checkBanks(allGood *bool) {
	banks := a.banks.GetBanks()
	a.printf("Bank store (%s): ✓ %d bank(s), %d group(s)\n", a.cfg.GrabberDBPath, len(banks), len(a.banks.GetGroups()))

	now := a.now()
	for _, b := range banks {
		imported := b.ImportedTill
		if imported == "" {
			imported = "never"
		}
		a.printf("  %s (imported till %s): ", b.Name, imported)
		if !b.AgreementValid(now) {
			a.printf("✗ Agreement expired (run 'grabber reconnect-bank %s')\n", b.Name)
			*allGood = false
			continue
		}
		a.printf("✓ Agreement valid until %s\n", b.EndUserAgreementValidTill.Format(time.DateOnly))
	}
}

func (a *app) checkAPIConnectivity(ctx context.Context, country string, allGood *bool) {
	a.printf("\nAPI Connectivity:\n")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.printf("  GoCardless API: ")
	client, err := a.newAPI()
	if err != nil {
		a.printf("✗ %v\n", err)
		*allGood = false
		return
	}
	institutions, err := client.ListInstitutions(ctx, country)
	if err != nil {
		a.printf("✗ %v\n", err)
		*allGood = false
		return
	}
	a.printf("✓ Connected (%d institutions in %s)\n", len(institutions), country)
}
