//go:build tools

// Package tools pins the linters and formatters used on this module.
//
//	go run github.com/golangci/golangci-lint/cmd/golangci-lint run ./...
//	go run mvdan.cc/gofumpt -l -w .
//	go run github.com/daixiang0/gci write -s standard -s default -s "prefix(github.com/Boelensman1/beancount-support)" .
package tools

import (
	_ "github.com/daixiang0/gci"
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "mvdan.cc/gofumpt"
)
