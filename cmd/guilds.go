package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var guildsCmd = &cobra.Command{
	Use:   "guilds [guild-id]",
	Short: "Print stored per-guild daily post settings",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bot := fetchBot()
		defer bot.Shutdown()
		if len(args) == 1 {
			settings, err := bot.GuildSettings(cmd.Context(), args[0])
			if err != nil {
				log.Fatalf("error loading guild settings: %s", err.Error())
			}
			if settings == nil {
				log.Fatalf("no settings stored for guild %q", args[0])
			}
			printJSON(settings)
			return
		}
		all, err := bot.AllGuildSettings(cmd.Context())
		if err != nil {
			log.Fatalf("error loading guild settings: %s", err.Error())
		}
		printJSON(all)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(guildsCmd)
}
