package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recvault/recvault/internal/vault"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a recording",
	Long:  `Remove a recording's metadata entry and its stored content.`,
	Args:  cobra.ExactArgs(1),
	Run:   runRm,
}

var rmForce bool

func init() {
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Skip the confirmation prompt")
}

func runRm(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ctx := context.Background()
	id := args[0]

	rec, err := c.Vault.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			exitError("recording not found: %s", id)
		}
		exitError("failed to load recording: %v", err)
	}

	if !rmForce {
		fmt.Printf("Remove %s (%s, %d bytes)? [y/N] ", rec.ShortID(), rec.Name, rec.Size)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted")
			return
		}
	}

	if err := c.Vault.Remove(ctx, id); err != nil {
		exitError("failed to remove recording: %v", err)
	}
	fmt.Printf("Removed %s\n", rec.ID)
}
