// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/chatd/internal/auth"
)

// NewCredentialCmd creates the credential subcommand.
func NewCredentialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credential <name>",
		Short: "Derive the credential hash for a name and password",
		Long: `Read a password from the first line of standard input and print the
credential hash a JSON client sends in an authenticate request.`,
		Args: cobra.ExactArgs(1),
		RunE: runCredential,
	}
}

func runCredential(cmd *cobra.Command, args []string) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return oops.Code("CREDENTIAL_NO_PASSWORD").With("operation", "read password").Wrap(err)
	}

	hash, err := auth.DeriveCredential(args[0], strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), hash); err != nil {
		return oops.With("operation", "write credential").Wrap(err)
	}
	return nil
}
