package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/recvault/recvault/internal/vault"
)

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show recording details",
	Long:  `Show the full metadata of a recording.`,
	Args:  cobra.ExactArgs(1),
	Run:   runInfo,
}

func runInfo(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	rec, err := c.Vault.Get(context.Background(), args[0])
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			exitError("recording not found: %s", args[0])
		}
		exitError("failed to load recording: %v", err)
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("recording %s\n", rec.ID)
	fmt.Printf("Source:       %s\n", rec.Source)
	fmt.Printf("Name:         %s\n", rec.Name)
	fmt.Printf("Content-Type: %s\n", rec.ContentType)
	fmt.Printf("Size:         %d bytes\n", rec.Size)
	fmt.Printf("Path:         %s\n", rec.Path)
	fmt.Print("Status:       ")
	statusColor(rec.Status).Println(rec.Status)
	fmt.Printf("Created:      %s\n", rec.CreatedAt.Format("Mon Jan 2 15:04:05 2006"))
	fmt.Printf("Updated:      %s\n", rec.UpdatedAt.Format("Mon Jan 2 15:04:05 2006"))
}
