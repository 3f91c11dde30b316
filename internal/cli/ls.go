package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/recvault/recvault/internal/index"
	"github.com/recvault/recvault/internal/models"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recordings",
	Long:  `List recordings in the vault, newest last.`,
	Run:   runLs,
}

var (
	lsSource string
	lsStatus string
	lsLimit  int
)

func init() {
	lsCmd.Flags().StringVar(&lsSource, "source", "", "Only show recordings from this source")
	lsCmd.Flags().StringVar(&lsStatus, "status", "", "Filter by status (pending, committed, deleted)")
	lsCmd.Flags().IntVarP(&lsLimit, "n", "n", 0, "Limit the number of recordings to show")
}

func runLs(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	opts := index.ListOptions{Source: lsSource, Limit: lsLimit}
	if lsStatus != "" {
		st := models.Status(lsStatus)
		if !st.Valid() {
			exitError("invalid status: %s", lsStatus)
		}
		opts.Status = st
	}

	recs, _, err := c.Vault.List(context.Background(), opts)
	if err != nil {
		exitError("failed to list recordings: %v", err)
	}

	if len(recs) == 0 {
		fmt.Println("No recordings")
		return
	}

	yellow := color.New(color.FgYellow)
	for _, rec := range recs {
		yellow.Printf("%s ", rec.ShortID())
		statusColor(rec.Status).Printf("%-9s ", rec.Status)
		fmt.Printf("%10d  %-20s %s\n", rec.Size, rec.Source, rec.Name)
	}
}

func statusColor(st models.Status) *color.Color {
	switch st {
	case models.StatusCommitted:
		return color.New(color.FgGreen)
	case models.StatusPending:
		return color.New(color.FgCyan)
	case models.StatusDeleted:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}
