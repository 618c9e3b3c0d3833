package cmd

import (
	"log"

	"github.com/algobotdev/algobot/algobot"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the AlgoBot Discord bot and scheduler",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := algobot.New(cfg)
		if err != nil {
			log.Fatalf("error creating algobot: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running algobot: %s", err.Error())
		}
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(runCmd)
}
