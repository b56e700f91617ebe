package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	libredis "tollbooth/backend/libs/redis"

	redisstore "tollbooth/backend/services/toll-controller/internal/redis"
	"tollbooth/backend/services/toll-controller/internal/service"
)

func statusCmd() *cobra.Command {
	var (
		addr     string
		password string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the booth status cached in redis by a running controller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := libredis.NewRedisClient(cmd.Context(), addr, password)
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			defer client.Close()

			snap, err := redisstore.NewStatusStore(client, nil, zap.NewNop()).Get(cmd.Context())
			if errors.Is(err, redis.Nil) {
				return errors.New("status: no controller has published to this redis yet")
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			printStatus(cmd, snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "redis-addr", os.Getenv("TOLL_REDIS_ADDR"), "redis address (default $TOLL_REDIS_ADDR)")
	cmd.Flags().StringVar(&password, "redis-password", os.Getenv("TOLL_REDIS_PASSWORD"), "redis password (default $TOLL_REDIS_PASSWORD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, snap *service.StatusSnapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Barrier: %s\n", snap.Barrier)
	fmt.Fprintf(out, "Device:  %s\n", snap.Device)
	if snap.LastTransaction != nil {
		fmt.Fprintln(out, snap.LastTransaction.Text())
	} else {
		fmt.Fprintln(out, "Latest Transaction: None")
	}
	if snap.LatestImage != "" {
		fmt.Fprintf(out, "Latest image: %s\n", snap.LatestImage)
	}
	fmt.Fprintf(out, "Updated: %s\n", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
}
