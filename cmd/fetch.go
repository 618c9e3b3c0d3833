package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/algobotdev/algobot/algobot"
	"github.com/spf13/cobra"
)

// fetchDomain is the --domain flag shared by the fetch subcommands.
var fetchDomain string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "One-shot data maintenance commands (no Discord session needed)",
}

func fetchBot() *algobot.AlgoBot {
	bot, err := algobot.New(cfg)
	if err != nil {
		log.Fatalf("error creating algobot: %s", err.Error())
	}
	return bot
}

func fetchClient(bot *algobot.AlgoBot) *algobot.LeetCode {
	domain := algobot.Domain(fetchDomain)
	if !domain.Valid() {
		log.Fatalf("invalid domain %q", fetchDomain)
	}
	return bot.Client(domain)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("error encoding result: %s", err.Error())
	}
	fmt.Println(string(data))
}

var fetchResyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Download the full problem lists and insert new problems",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		bot := fetchBot()
		defer bot.Shutdown()
		inserted, err := fetchClient(bot).ResyncProblems(cmd.Context())
		if err != nil {
			log.Fatalf("error resyncing problems: %s", err.Error())
		}
		fmt.Printf("inserted %d new problems\n", inserted)
	},
}

var fetchDailyCmd = &cobra.Command{
	Use:   "daily [date]",
	Short: "Resolve the daily challenge for a date (default: today)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bot := fetchBot()
		defer bot.Shutdown()
		date := ""
		if len(args) > 0 {
			date = args[0]
		}
		daily, err := fetchClient(bot).GetDailyChallenge(cmd.Context(), date)
		if err != nil {
			log.Fatalf("error resolving daily challenge: %s", err.Error())
		}
		if daily == nil {
			log.Fatalf("no daily challenge found for %q", date)
		}
		printJSON(daily)
	},
}

var fetchMonthlyCmd = &cobra.Command{
	Use:   "monthly <year> <month>",
	Short: "List the monthly challenge archive for a month",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		year, yerr := strconv.Atoi(args[0])
		month, merr := strconv.Atoi(args[1])
		if yerr != nil || merr != nil || month < 1 || month > 12 {
			log.Fatalf("year and month must be numeric (got %q %q)", args[0], args[1])
		}
		bot := fetchBot()
		defer bot.Shutdown()
		monthly, err := fetchClient(bot).FetchMonthlyChallenges(
			cmd.Context(), year, month,
		)
		if err != nil {
			log.Fatalf("error fetching monthly challenges: %s", err.Error())
		}
		if monthly == nil {
			log.Fatalf("no archive available for %d-%02d", year, month)
		}
		printJSON(monthly)
	},
}

var fetchProblemCmd = &cobra.Command{
	Use:   "problem <id-or-slug>",
	Short: "Resolve and print one problem record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bot := fetchBot()
		defer bot.Shutdown()
		problemID, slug := 0, ""
		if id, err := strconv.Atoi(args[0]); err == nil {
			problemID = id
		} else {
			slug = args[0]
		}
		p, err := fetchClient(bot).GetProblem(cmd.Context(), problemID, slug)
		if err != nil {
			log.Fatalf("error resolving problem: %s", err.Error())
		}
		if p == nil {
			log.Fatalf("problem %q not found", args[0])
		}
		printJSON(p)
	},
}

var fetchRatingCmd = &cobra.Command{
	Use:   "rating <id>",
	Short: "Resolve a problem's contest rating",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		problemID, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("problem id must be numeric, got %q", args[0])
		}
		bot := fetchBot()
		defer bot.Shutdown()
		rating := fetchClient(bot).GetRating(cmd.Context(), problemID)
		if rating == 0 {
			fmt.Printf("problem %d is unrated\n", problemID)
			return
		}
		fmt.Printf("%.0f\n", rating)
	},
}

//nolint:gochecknoinits
func init() {
	fetchCmd.PersistentFlags().StringVar(
		&fetchDomain,
		"domain",
		string(algobot.DomainPrimary),
		`LeetCode domain ("com" or "cn")`,
	)
	fetchCmd.AddCommand(
		fetchResyncCmd,
		fetchDailyCmd,
		fetchMonthlyCmd,
		fetchProblemCmd,
		fetchRatingCmd,
	)
	rootCmd.AddCommand(fetchCmd)
}
