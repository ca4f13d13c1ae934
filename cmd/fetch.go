package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/fetcher"
	"github.com/sells-group/featsource/internal/resilience"
	"github.com/sells-group/featsource/internal/tiger"
)

var (
	fetchDest   string
	fetchState  string
	fetchCounty []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]...",
	Short: "Download and unpack source archives",
	Long: "Downloads each URL (http, https or ftp) into --dest, extracting ZIP archives. With --state and " +
		"--county, fetches legacy TIGER/Line county archives; the result opens as tiger:<dest>.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		urls, err := fetchURLs(args, fetchState, fetchCounty, cfg.Tiger.Release)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return eris.New("fetch: give a URL or --state with --county")
		}

		dest := firstNonEmpty(fetchDest, cfg.Fetch.TempDir)
		client := fetcher.New(fetcher.Options{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			Retry:     resilience.FromConfig(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialBackoffMs, 0),
		})

		for _, u := range urls {
			files, err := client.Fetch(ctx, u, dest)
			if err != nil {
				return err
			}
			for _, f := range files {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			if rt7, ok := fetcher.FindByExt(files, ".rt7"); ok {
				zap.L().Info("landmarks file ready", zap.String("file", rt7), zap.String("dsn", "tiger:"+filepath.Dir(rt7)))
			}
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDest, "dest", "", "download directory (default from config)")
	fetchCmd.Flags().StringVar(&fetchState, "state", "", "state abbreviation for TIGER/Line archives, e.g. CA")
	fetchCmd.Flags().StringSliceVar(&fetchCounty, "county", nil, "county FIPS codes for TIGER/Line archives, e.g. 037")
	rootCmd.AddCommand(fetchCmd)
}

// fetchURLs combines explicit URLs with TIGER/Line county archive URLs.
func fetchURLs(args []string, state string, counties []string, release string) ([]string, error) {
	urls := append([]string(nil), args...)
	if state == "" {
		if len(counties) > 0 {
			return nil, eris.New("fetch: --county requires --state")
		}
		return urls, nil
	}
	if len(counties) == 0 {
		return nil, eris.New("fetch: --state requires --county")
	}
	for _, county := range counties {
		u, err := tiger.ArchiveURL(release, state, county)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}
