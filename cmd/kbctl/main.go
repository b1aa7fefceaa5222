// Package main 提供知识库运维命令：同步重建索引、统计、清理租户、检索和签发测试令牌。
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"docsage-go/internal/app"
	"docsage-go/internal/config"
	"docsage-go/internal/model"
	"docsage-go/pkg/log"
	"docsage-go/pkg/token"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbctl",
		Short: "Knowledge base maintenance commands",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Path to config.yaml")

	rootCmd.AddCommand(
		createReindexCommand(),
		createStatsCommand(),
		createPurgeCommand(),
		createSearchCommand(),
		createTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createReindexCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild all chunks of a tenant synchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			return printJSON(a.Job.Run(cmd.Context(), userID))
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Tenant user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func createStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print global index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			stats, err := a.Admin.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func createPurgeCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every chunk, upload and file record of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			res, err := a.Admin.PurgeUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Tenant user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func createSearchCommand() *cobra.Command {
	var (
		userID string
		fileID string
		topK   int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			var filters map[string]string
			if fileID != "" {
				filters = map[string]string{model.FieldFileID: fileID}
			}
			return printJSON(a.Index.Search(cmd.Context(), args[0], userID, topK, filters))
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Tenant user id")
	cmd.Flags().StringVarP(&fileID, "file", "f", "", "Restrict to one file id")
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Maximum number of results (0 = configured default)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func createTokenCommand() *cobra.Command {
	var (
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(userID, role)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Tenant user id")
	cmd.Flags().StringVarP(&role, "role", "r", "USER", "Role claim (USER or ADMIN)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func bootstrap() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, "")
	return app.New(*cfg)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

