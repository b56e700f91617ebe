package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tollbooth/backend/services/toll-controller/internal/password"
)

func passwdCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "passwd [password]",
		Short: "Print a bcrypt hash for auth.passwordHash",
		Long: `Hashes the operator password for the TOLL_OPERATOR_PASSWORD_HASH setting.
The password is taken from the argument or, when absent, from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("passwd: no password given")
				}
				plain = strings.TrimRight(line, "\r\n")
			}

			hash, err := password.NewBcryptHasher(cost).Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (0 selects the library default)")
	return cmd
}
