package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/wansanai/ParquetGrip/core"
	"github.com/wansanai/ParquetGrip/engine"
	"github.com/wansanai/ParquetGrip/session"
)

// newPeekCommand prints one page of a file to the terminal without
// starting the server. Useful for quick inspection and scripting.
func newPeekCommand() *cobra.Command {
	var (
		filter    string
		sort      string
		pageIndex int
		pageSize  int
		count     bool
	)

	cmd := &cobra.Command{
		Use:   "peek <file>",
		Short: "Print one page of a file as a table",
		Example: `  parquetgrip peek data.parquet
  parquetgrip peek --filter "amount > 100" --sort "amount DESC" data.parquet
  parquetgrip peek --page 3 --page-size 25 events.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := core.WithLogger(context.Background(), "peek")

			eng, err := engine.New()
			if err != nil {
				return err
			}
			defer eng.Close()

			rel, err := eng.Register(ctx, args[0], "")
			if err != nil {
				return err
			}

			stmt, err := session.Compose(rel.Name(), filter, sort, pageIndex, pageSize)
			if err != nil {
				return err
			}

			cols, rows, err := eng.Execute(ctx, stmt)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			header := make([]string, len(cols))
			for i, c := range cols {
				header[i] = c.Name
			}
			table.SetHeader(header)
			for _, row := range rows {
				table.Append(row)
			}
			table.Render()

			if count {
				total, err := eng.RowCount(ctx, rel)
				if err != nil {
					return err
				}
				fmt.Printf("%d rows total\n", total)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Boolean predicate for the WHERE clause")
	cmd.Flags().StringVar(&sort, "sort", "", "Expression for the ORDER BY clause")
	cmd.Flags().IntVar(&pageIndex, "page", 0, "Zero-based page index")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Rows per page")
	cmd.Flags().BoolVar(&count, "count", false, "Also print the total row count")
	return cmd
}
