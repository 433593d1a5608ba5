// Copyright (c) 2025 Justin Cranford
//

// Package main provides the hashrand-server entry point.
package main

import (
	"os"

	hashrandAppsServer "github.com/arkaitz-dev/hashrand-sub003/internal/apps/server"
)

func main() {
	os.Exit(hashrandAppsServer.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
