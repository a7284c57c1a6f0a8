// Package main is the entrypoint for licensectl, the admin CLI for the
// license server.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/min-zu/license-server-sub000/internal/auth"
	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// client calls the license server admin API.
type client struct {
	serverURL string
	apiKey    string
	http      *http.Client
}

func newClient(serverURL, apiKey string) *client {
	return &client{
		serverURL: serverURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// do performs a request and decodes the JSON response into out (if non-nil).
func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var serverURL, apiKey string

	rootCmd := &cobra.Command{
		Use:          "licensectl",
		Short:        "Administer the appliance license server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("LICENSE_SERVER_URL", "http://localhost:8080"), "license server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("LICENSE_ADMIN_KEY"), "admin API key (or LICENSE_ADMIN_KEY)")

	getClient := func() *client { return newClient(serverURL, apiKey) }

	rootCmd.AddCommand(
		newVersionCmd(),
		newRegisterCmd(getClient),
		newListCmd(getClient),
		newReauthorizeCmd(getClient),
		newAPIKeyCmd(getClient),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("licensectl %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newRegisterCmd(getClient func() *client) *cobra.Command {
	var family string
	var firewall, vpn, dpi, antivirus, antispam, ssl, tracker bool
	var limitStart, limitEnd string

	cmd := &cobra.Command{
		Use:   "register <hardware-code>",
		Short: "Register a new license record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"hardware_code": args[0],
				"family":        family,
				"features": map[string]bool{
					"firewall":  firewall,
					"vpn":       vpn,
					"dpi":       dpi,
					"antivirus": antivirus,
					"antispam":  antispam,
					"ssl":       ssl,
					"tracker":   tracker,
				},
			}
			if limitStart != "" {
				t, err := time.Parse("2006-01-02", limitStart)
				if err != nil {
					return fmt.Errorf("invalid --start date: %w", err)
				}
				body["limit_time_start"] = t
			}
			if limitEnd != "" {
				t, err := time.Parse("2006-01-02", limitEnd)
				if err != nil {
					return fmt.Errorf("invalid --end date: %w", err)
				}
				body["limit_time_end"] = t
			}

			var created struct {
				ID           string `json:"id"`
				HardwareCode string `json:"hardware_code"`
				Family       string `json:"family"`
			}
			if err := getClient().do(http.MethodPost, "/api/v1/licenses", body, &created); err != nil {
				return err
			}

			fmt.Printf("Registered %s (%s) as %s\n", created.HardwareCode, created.Family, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "device family (derived from the serial when omitted)")
	cmd.Flags().BoolVar(&firewall, "firewall", false, "enable the firewall feature")
	cmd.Flags().BoolVar(&vpn, "vpn", false, "enable the VPN feature")
	cmd.Flags().BoolVar(&dpi, "dpi", false, "enable the DPI feature")
	cmd.Flags().BoolVar(&antivirus, "antivirus", false, "enable the antivirus feature")
	cmd.Flags().BoolVar(&antispam, "antispam", false, "enable the antispam feature")
	cmd.Flags().BoolVar(&ssl, "ssl", false, "enable the SSL inspection feature")
	cmd.Flags().BoolVar(&tracker, "tracker", false, "enable the tracker feature")
	cmd.Flags().StringVar(&limitStart, "start", "", "validity window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&limitEnd, "end", "", "validity window end (YYYY-MM-DD)")
	return cmd
}

func newListCmd(getClient func() *client) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered license records",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Licenses []struct {
					ID           string  `json:"id"`
					HardwareCode string  `json:"hardware_code"`
					Family       string  `json:"family"`
					AuthCode     *string `json:"auth_code"`
					Process      int     `json:"process"`
				} `json:"licenses"`
			}
			path := fmt.Sprintf("/api/v1/licenses?limit=%d&offset=%d", limit, offset)
			if err := getClient().do(http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			for _, lic := range resp.Licenses {
				state := "issued"
				if lic.AuthCode != nil && *lic.AuthCode == "" {
					state = "unissued"
				}
				fmt.Printf("%s  %-4s  %-8s  %s\n", lic.ID, lic.Family, state, lic.HardwareCode)
			}
			fmt.Printf("%d record(s)\n", len(resp.Licenses))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	return cmd
}

func newReauthorizeCmd(getClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "reauthorize <license-id>",
		Short: "Clear an issued key so the device gets a new one on its next check-in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/licenses/" + args[0] + "/reauthorize"
			if err := getClient().do(http.MethodPost, path, nil, nil); err != nil {
				return err
			}
			fmt.Println("License cleared for reissue.")
			return nil
		},
	}
}

func newAPIKeyCmd(getClient func() *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage admin API keys",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new admin API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				Key  string `json:"key"`
			}
			body := map[string]string{"name": args[0]}
			if err := getClient().do(http.MethodPost, "/api/v1/admin-keys", body, &resp); err != nil {
				return err
			}

			fmt.Printf("Created key %s (%s)\n", resp.Name, resp.ID)
			fmt.Printf("Key: %s\n", resp.Key)
			fmt.Println("Store this key now; it cannot be retrieved again.")
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an admin API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := getClient().do(http.MethodDelete, "/api/v1/admin-keys/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Println("API key revoked.")
			return nil
		},
	}

	cmd.AddCommand(create, revoke, newAPIKeyBootstrapCmd())
	return cmd
}

// newAPIKeyBootstrapCmd mints the first admin key by writing to the
// database directly. Every other key is created through the admin API,
// but that API needs a key to call it with.
func newAPIKeyBootstrapCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "bootstrap <name>",
		Short: "Create the first admin API key directly against the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}
			ctx := cmd.Context()

			database, err := db.New(ctx, db.DefaultConfig(databaseURL), zerolog.Nop())
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer database.Close()

			// A fresh install may not have its schema yet.
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}

			key, rec, err := auth.BootstrapAPIKey(ctx, database, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Created key %s (%s)\n", rec.Name, rec.ID)
			fmt.Printf("Key: %s\n", key)
			fmt.Println("Store this key now; it cannot be retrieved again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or DATABASE_URL)")
	return cmd
}
