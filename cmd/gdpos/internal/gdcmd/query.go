package gdcmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tv42/httpunix"
)

func newQueryCmd() *cobra.Command {
	var httpAddr, httpSocket string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query PATH",
		Short: "Query a running gdpos serve process",
		Long: `Query a running gdpos serve process and print the response body.

Examples:

  gdpos query round/current
  gdpos query round/3
  gdpos query lib
  gdpos query producers/NAME/command
  gdpos query --http-socket /tmp/gdpos.sock mining-interval`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			base := "http://" + httpAddr
			if httpSocket != "" {
				u := &httpunix.Transport{
					DialTimeout:           timeout,
					RequestTimeout:        timeout,
					ResponseHeaderTimeout: timeout,
				}
				u.RegisterLocation("gdpos", httpSocket)
				client.Transport = u
				base = httpunix.Scheme + "://gdpos"
			}

			req, err := http.NewRequestWithContext(
				cmd.Context(), http.MethodGet,
				base+"/"+strings.TrimPrefix(args[0], "/"), nil,
			)
			if err != nil {
				return err
			}

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "127.0.0.1:9090", "TCP address of the HTTP server")
	cmd.Flags().StringVar(&httpSocket, "http-socket", "", "unix socket path of the HTTP server (overrides --http-addr)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	return cmd
}
