package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/memorg/pkg/engine"
	"github.com/theapemachine/memorg/pkg/retrieval"
	"github.com/theapemachine/memorg/pkg/types"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a self-contained demo of the engine",
	Long:  longDemo,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "memorg"})
		eng := engine.New(engine.WithLogger(logger))

		session, err := eng.CreateSession(ctx, "demo-user", nil)
		if err != nil {
			return err
		}

		conversation, err := eng.CreateConversation(ctx, session.ID)
		if err != nil {
			return err
		}

		topic, err := eng.CreateTopic(ctx, conversation.ID, "trip planning")
		if err != nil {
			return err
		}

		exchanges := [][2]string{
			{"I want to fly to Lisbon in the first week of June", "There are direct flights on Tuesday and Friday mornings"},
			{"Book the Tuesday one, and find a hotel near the river", "Flight booked; the Riverside Inn has availability"},
			{"What was the name of that hotel again?", "The Riverside Inn, near the Tagus"},
		}

		for _, pair := range exchanges {
			if _, err := eng.AddExchange(ctx, topic.ID, pair[0], pair[1]); err != nil {
				return err
			}
		}

		eng.Store().Close()

		results, err := eng.Search(ctx, "hotel near the river",
			retrieval.Scope{Kind: types.ScopeTopic, ID: topic.ID}, 3)
		if err != nil {
			return err
		}

		fmt.Println("search results for \"hotel near the river\":")
		for _, result := range results {
			fmt.Printf("  %.3f  %s\n", result.Score, firstLine(result.Content))
		}

		optimized, err := eng.Optimize(ctx,
			joinHistory(exchanges),
			[]types.Entity{{Value: "Riverside Inn"}},
			24,
		)
		if err != nil {
			return err
		}

		fmt.Println("\noptimized context window (24 tokens):")
		fmt.Println("  " + optimized)

		usage, err := eng.GetMemoryUsage(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\nusage: %d tokens hot, %d items, %d vectors\n",
			usage.TotalTokens, usage.ActiveItems, usage.VectorCount)

		return eng.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func firstLine(content string) string {
	for i, r := range content {
		if r == '\n' {
			return content[:i]
		}
	}
	return content
}

func joinHistory(exchanges [][2]string) string {
	out := ""
	for _, pair := range exchanges {
		out += pair[0] + ". " + pair[1] + ". "
	}
	return out
}

var longDemo = `
demo runs the engine fully in-process with the deterministic provider: it
builds a small conversation, searches it and fits the history into a tight
token budget, printing each step.
`
