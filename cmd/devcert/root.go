package main

import (
	"context"
	"strings"
	"time"

	"github.com/sensiblebit/devcert/internal"
	"github.com/spf13/cobra"
)

var (
	logLevel     string
	dbPath       string
	timeout      time.Duration
	passwordList string
	passwordFile string
)

var rootCmd = &cobra.Command{
	Use:           "devcert",
	Short:         "Development certificate generator",
	Long:          "Generate private keys, CSRs, self-signed or CA-signed certificates, public keys and PKCS#12/JKS/PKCS#7 bundles for local development.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetupLogger(cmd.ErrOrStderr(), logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite issuance ledger path (default: no ledger)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long")
	rootCmd.PersistentFlags().StringVarP(&passwordList, "passwords", "p", "", "Comma-separated passwords for encrypted keys and keystores")
	rootCmd.PersistentFlags().StringVar(&passwordFile, "password-file", "", "File containing passwords, one per line")

	completeFlag(rootCmd, "log-level", values("debug", "info", "warn", "error"))
	completeFlag(rootCmd, "db", files("db", "sqlite"))
	completeFlag(rootCmd, "password-file", files())

	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(historyCmd)
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// loadPasswords merges the defaults with --passwords and --password-file.
func loadPasswords() ([]string, error) {
	var list []string
	if passwordList != "" {
		list = strings.Split(passwordList, ",")
	}
	return internal.CandidatePasswords(list, passwordFile)
}
