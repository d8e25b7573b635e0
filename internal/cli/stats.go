package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/akiba-network/akiba/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine status from a running instance",
	Long:  `Query the ops API of a running engine and print its status snapshot.`,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/api/status", "/api/scheduler/stats"} {
		url := "http://" + cfg.API.Addr() + path
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("reach engine at %s: %w", cfg.API.Addr(), err)
		}
		var body any
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("decode %s: %w", path, decodeErr)
		}
		pretty, err := json.MarshalIndent(body, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s\n%s\n", path, pretty)
	}
	return nil
}
