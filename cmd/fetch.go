package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linepulse/linepulse/internal/model"
)

var fetchMaxAgeSecs int

var fetchCmd = &cobra.Command{
	Use:   "fetch <data-type> <entity-id>",
	Short: "Fetch and reconcile one entity across all sources",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, ok := model.ParseDataType(args[0])
		if !ok {
			return eris.Errorf("unknown data type: %s", args[0])
		}
		entityID := args[1]

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		obs, err := env.Manager.FetchEntity(cmd.Context(), dt, entityID, time.Duration(fetchMaxAgeSecs)*time.Second)
		if err != nil {
			return eris.Wrapf(err, "fetch %s/%s", dt, entityID)
		}

		zap.L().Info("fetch complete",
			zap.String("data_type", string(dt)),
			zap.String("entity_id", entityID),
			zap.Float64("confidence", obs.Quality.Confidence),
			zap.Duration("elapsed", time.Since(start)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(obs)
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchMaxAgeSecs, "max-age", 0, "cache TTL in seconds (default from config)")
	rootCmd.AddCommand(fetchCmd)
}
