package cli

import (
	"github.com/spf13/cobra"
)

// NewTopologyCmd создаёт команду вывода топологии брокеров.
func NewTopologyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Show exchanges and queues of both brokers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			topo, err := client.GetTopology()
			if err != nil {
				return err
			}

			headers := []string{"TIER", "EXCHANGE", "QUEUE", "HOST", "SUBSYSTEM"}
			var rows [][]string
			for _, t := range topo.Tiers {
				for _, q := range t.Queues {
					rows = append(rows, []string{t.Tier, t.Exchange, q.Name, q.Host, q.Subsystem})
				}
				rows = append(rows, []string{t.Tier, t.Exchange + ".dlq", t.DeadLetters, "", ""})
			}

			out.Print(headers, rows, topo)
			return nil
		},
	}
}
