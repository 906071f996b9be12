package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dbfriend",
	Short: "Sync spatial datasets into PostGIS",
	Long: `dbfriend loads GeoJSON and GeoPackage files into PostGIS tables.

Existing tables are never truncated: each incoming feature is compared
against the table by content hash and classified as new, updated or
identical, and only the differences are written. Every table mutation
runs inside a single transaction with an in-database backup of the
previous state.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("host", "localhost", "PostgreSQL host")
	pf.Int("port", 5432, "PostgreSQL port")
	pf.String("user", "", "PostgreSQL user")
	pf.String("dbname", "", "target database name")
	pf.String("sslmode", "", "sslmode parameter (disable, require, ...)")
	pf.String("config", "", "config file to read settings from")
	pf.String("log-level", "info", "log verbosity: debug or info")
	pf.String("log-file", "", "also write logs to this rotating file")
	pf.BoolP("verbose", "v", false, "shorthand for --log-level debug")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
