package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/christmas-fire/squadup/internal/client"
	"github.com/christmas-fire/squadup/internal/models"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	historyServer string
	historyGroup  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a group's stored messages as a table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		messages, err := client.History(cmd.Context(), historyServer, historyGroup)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Created", "Sender", "Kind", "Status", "Content"})
		table.SetAutoWrapText(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)

		for _, m := range messages {
			content := m.Content
			if m.Poll != nil {
				content += " [" + strings.Join(lo.Map(m.Poll.Options, func(o models.PollOption, _ int) string {
					return fmt.Sprintf("%s: %d", o.Text, o.Count)
				}), ", ") + "]"
			}
			table.Append([]string{
				m.ID,
				m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				lo.CoalesceOrEmpty(m.SenderName, m.SenderEmail, m.SenderID),
				string(m.Kind()),
				string(m.Status),
				content,
			})
		}
		table.Render()
		fmt.Fprintf(os.Stdout, "%d messages\n", len(messages))
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyServer, "server", "http://localhost:5000", "Server base URL")
	historyCmd.Flags().StringVar(&historyGroup, "group", "", "Group id")
	_ = historyCmd.MarkFlagRequired("group")
}
