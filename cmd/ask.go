package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docqa-io/docqa/config"
	srv "github.com/docqa-io/docqa/internal/server"
)

func askCMD() *cobra.Command {
	var cfgPath string

	var ask = &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			_, pl, err := srv.BuildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			ans, err := pl.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(ans.Text)
			for _, src := range ans.Sources {
				fmt.Printf("  source: %s\n", src)
			}
			return nil
		},
	}
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}
