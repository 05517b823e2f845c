package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/config"
	"github.com/suPer8Hu/personallm/internal/export"
	"github.com/suPer8Hu/personallm/internal/store/localstore"
)

func exportCmd() *cobra.Command {
	var (
		format string
		out    string
		userID string
	)
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation transcript to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			st, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			exp, err := export.NewExporter(format)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			conv, err := st.GetConversation(ctx, userID, args[0])
			if err != nil {
				return err
			}
			msgs, err := chat.History(ctx, st, conv.ID, conv.ActiveBranchID)
			if err != nil {
				return err
			}

			if out == "" {
				out = fmt.Sprintf("%s.%s", export.SafeFilename(conv.Title), exp.Extension())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			t := &export.Transcript{
				Title:      conv.Title,
				ExportedAt: time.Now(),
				Messages:   msgs,
			}
			if err := exp.Export(t, f); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "output format: md or json")
	cmd.Flags().StringVar(&out, "out", "", "output file (defaults to a name derived from the title)")
	cmd.Flags().StringVar(&userID, "user", localstore.LocalUserID, "owner id the conversation belongs to")
	return cmd
}
