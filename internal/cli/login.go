package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/me/creativeapis/internal/config"
	"github.com/me/creativeapis/internal/logging"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Picsart API key",
		Long:  "Store a Picsart API key in the config file. The key is checked against the balance endpoint unless --skip-verify is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			key := ""
			if cmd.Flags().Changed("api-key") {
				key = strings.TrimSpace(flagAPIKey)
			} else {
				fmt.Fprint(w, "Picsart API key: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read API key: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return fmt.Errorf("API key cannot be empty")
			}
			cfg.APIKey = key

			if !skipVerify {
				c, err := apiClient()
				if err != nil {
					return err
				}
				res, err := c.Image().Balance().Do(cmd.Context())
				if err != nil {
					return fmt.Errorf("verify API key: %w", err)
				}
				fmt.Fprintf(w, "Key %s is valid, %s credits available\n", logging.Mask(key), humanizeCredits(res.Credits))
			}

			path, err := configPath()
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(w, "Credentials saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Save the key without checking it")
	return cmd
}
