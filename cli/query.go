package cli

import (
	"fmt"
	"strings"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/query"
	"github.com/spf13/cobra"
)

const filterHelp = `The filter is a JSON object. {"age": 30} matches equality,
{"age": {"$gt": 30}} compares with $eq, $gt, $lt, $ge or $le, and
{"$or": [{...}, {...}]} combines filters with $and or $or. Several keys in
one object are joined with AND in the order written.`

func newFindCommand() *cobra.Command {
	var (
		columns []string
		orderBy []string
		groupBy []string
		limit   int
		offset  int
		stream  bool
	)

	cmd := &cobra.Command{
		Use:   "find <table> [filter]",
		Short: "Print matching rows as JSON lines",
		Long:  "Print every row of the table that matches the filter, one JSON object per line.\n\n" + filterHelp,
		Example: `  litetable find users '{"age": {"$ge": 21}}' --order name --limit 10
  litetable find users --select team,'COUNT(*) AS n' --group-by team`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := buildQuery(db, args)
			if err != nil {
				return err
			}
			q = q.Select(columns...).GroupBy(groupBy...)
			for _, term := range orderBy {
				q = q.OrderBy(orderTerm(term))
			}
			if cmd.Flags().Changed("limit") {
				q = q.Limit(limit)
			}
			if cmd.Flags().Changed("offset") {
				q = q.Offset(offset)
			}

			out := cmd.OutOrStdout()
			if !stream {
				_, err = q.Each(ctx, func(r database.Row) error {
					return writeJSONLine(out, r)
				})
				return err
			}

			s, err := q.Stream(ctx, query.StreamOptions{})
			if err != nil {
				return err
			}
			defer s.Close()
			for s.Next() {
				if err := writeJSONLine(out, s.Row()); err != nil {
					return err
				}
			}
			return s.Err()
		},
	}

	cmd.Flags().StringSliceVar(&columns, "select", nil, "columns to return (default all)")
	cmd.Flags().StringArrayVar(&orderBy, "order", nil, "order by column, or column:desc (repeatable)")
	cmd.Flags().StringSliceVar(&groupBy, "group-by", nil, "group by columns")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of rows to skip")
	cmd.Flags().BoolVar(&stream, "stream", false, "fetch rows in the background while printing")

	return cmd
}

func newCountCommand() *cobra.Command {
	var groupBy []string

	cmd := &cobra.Command{
		Use:   "count <table> [filter]",
		Short: "Print the number of matching rows",
		Long:  "Print the number of rows that match the filter, or the number of groups with --group-by.\n\n" + filterHelp,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := buildQuery(db, args)
			if err != nil {
				return err
			}
			n, err := q.GroupBy(groupBy...).Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&groupBy, "group-by", nil, "count groups instead of rows")
	return cmd
}

// buildQuery starts a query on args[0] filtered by the JSON in args[1].
func buildQuery(db database.Executor, args []string) (query.Query, error) {
	q := query.New(db).From(args[0])
	if len(args) < 2 {
		return q, nil
	}
	filter, err := query.ParseJSON([]byte(args[1]))
	if err != nil {
		return q, fmt.Errorf("failed to parse filter: %w", err)
	}
	return q.Find(filter), nil
}

// orderTerm turns "name" or "name:desc" into an OrderBy argument.
func orderTerm(flag string) any {
	col, dir, ok := strings.Cut(flag, ":")
	if !ok {
		return col
	}
	return query.M{{Key: col, Value: dir}}
}
