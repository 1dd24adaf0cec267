package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/logger"
	"github.com/feed-collector/pkg/storage"
)

var (
	cfgFile string
	valid   = validator.New()
)

var rootCmd = &cobra.Command{
	Use:   "adduser NAME EMAIL",
	Short: "Register a notification recipient",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log, err := logger.Init(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		_, err = addUser(cmd.Context(), cfg, log, args[0], args[1])
		return err
	},
}

// addUser 校验邮箱后写入 user_preferences；邮箱已登记时返回 false 且不报错
func addUser(ctx context.Context, cfg *config.Config, log *zap.Logger, name, email string) (bool, error) {
	if err := valid.Var(email, "required,email"); err != nil {
		return false, fmt.Errorf("invalid email %q: %w", email, err)
	}

	store, err := storage.New(ctx, cfg.Database.DBPath,
		storage.WithBusyTimeout(cfg.Database.BusyTimeout),
		storage.WithLogger(log.Named("storage")))
	if err != nil {
		return false, err
	}
	added, err := store.AddRecipient(ctx, name, email)
	if err != nil {
		return false, err
	}
	if !added {
		log.Warn("recipient already registered", zap.String("email", email))
		return false, nil
	}
	log.Info("recipient added", zap.String("name", name), zap.String("email", email))
	return true, nil
}

func main() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "配置文件路径")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
