package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Reconcile stored content with the index",
	Long: `Walk the recordings root and the metadata index and repair any
inconsistency left by an interrupted ingest or remove: orphan blobs are
deleted, index entries without content are marked deleted, and expired
pending entries are dropped.

The server runs the same scan on startup. Use this command for an
offline repair while the server is stopped.`,
	Run: runScan,
}

func runScan(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	res, err := c.Vault.Scan(context.Background(), c.Config.PendingGrace.Duration())
	if err != nil {
		exitError("scan failed: %v", err)
	}

	fmt.Printf("Scanned %d blobs and %d index entries\n", res.BlobsScanned, res.EntriesScanned)

	repairs := res.OrphansRemoved + res.DanglingMarked + res.PendingExpired + res.TempFilesSwept
	if repairs == 0 {
		color.New(color.FgGreen).Println("Vault is consistent, nothing to repair")
		return
	}

	yellow := color.New(color.FgYellow)
	if res.OrphansRemoved > 0 {
		yellow.Printf("Removed %d orphan blobs\n", res.OrphansRemoved)
	}
	if res.DanglingMarked > 0 {
		yellow.Printf("Marked %d entries deleted (content missing)\n", res.DanglingMarked)
	}
	if res.PendingExpired > 0 {
		yellow.Printf("Expired %d stale pending entries\n", res.PendingExpired)
	}
	if res.TempFilesSwept > 0 {
		yellow.Printf("Swept %d leftover temp files\n", res.TempFilesSwept)
	}
	if res.PendingKept > 0 {
		fmt.Printf("Kept %d pending entries within the grace window\n", res.PendingKept)
	}
}
