// cmd/sessiondb/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/unclebandit/thunderlink/internal/config"
	"github.com/unclebandit/thunderlink/internal/db"
	"github.com/unclebandit/thunderlink/internal/logger"
	"github.com/unclebandit/thunderlink/internal/whatsapp"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sessiondb",
	Short: "Inspect and maintain the WhatsApp device session store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		return logger.StartLogger(cfg.LogDir, "sessiondb", cfg.LogLevel)
	},
	SilenceUsage: true,
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Create or migrate the device session schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *sqlstore.Container) error {
			fmt.Println("✅ Session store is up to date")
			return nil
		})
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List paired devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *sqlstore.Container) error {
			devices, err := c.GetAllDevices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No paired device")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%s\t%s\t%s\n", d.ID, d.PushName, d.Platform)
			}
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every paired device so the next bridge start shows a QR code",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *sqlstore.Container) error {
			devices, err := c.GetAllDevices(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range devices {
				if err := d.Delete(cmd.Context()); err != nil {
					return fmt.Errorf("failed to delete %s: %w", d.ID, err)
				}
				fmt.Printf("🗑️ Deleted %s\n", d.ID)
			}
			return nil
		})
	},
}

func withContainer(ctx context.Context, fn func(c *sqlstore.Container) error) error {
	conn, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	c, err := whatsapp.OpenStore(ctx, conn, cfg.DB.Dialect)
	if err != nil {
		return err
	}
	return fn(c)
}

func main() {
	rootCmd.AddCommand(upgradeCmd, devicesCmd, resetCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
