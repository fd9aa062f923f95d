package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/sma-gatepass-api/internal/service"
)

var (
	isTerminalFunc   = term.IsTerminal   // mockable
	readPasswordFunc = term.ReadPassword // mockable
)

func newHashKeyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key",
		Short: "Hash an operator key for ADMIN_KEY_HASH or AUDITOR_KEY_HASH",
		Long:  "Reads the key without echo from a terminal, or as the first line of piped stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := readKey(cmd)
			if err != nil {
				return err
			}
			hash, err := service.HashKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, hash)
			return nil
		},
	}
}

func readKey(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if isTerminalFunc(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter key: ")
		raw, err := readPasswordFunc(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
