// Command postprocessor appends auto-postings to the transactions of a
// beancount file. Without arguments it opens a menu for editing accounts
// and rules.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Boelensman1/beancount-support/pkg/config"
	"github.com/Boelensman1/beancount-support/pkg/logging"
	"github.com/Boelensman1/beancount-support/pkg/orchestrator"
	"github.com/Boelensman1/beancount-support/pkg/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	if len(args) > 1 {
		return errors.New("too many arguments")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	logger := logging.Setup(logging.FromStrings(cfg.LogLevel, cfg.LogFormat))

	rules, err := store.OpenRuleStore(cfg.RulesDBPath)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return newMenu(rules, in, out).run()
	}

	text, err := orchestrator.New(rules, logger).ProcessFile(args[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, text)
	return err
}
