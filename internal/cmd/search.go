package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/logpile"
	"github.com/coffersTech/logpile/internal/model"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		shape   string
		literal bool
		asJSON  bool
		opts    logpile.SearchOptions
	)

	cmd := &cobra.Command{
		Use:   "search [value]",
		Short: "Search stored entries by value, partial shape or time window",
		Example: `  logpile search "Bearer token"
  logpile search --shape '{"method":"post"}'
  logpile search 500 --time 1h --intersect`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && shape != "" {
				return fmt.Errorf("a value and --shape are mutually exclusive")
			}
			query, err := searchQuery(args, shape, literal)
			if err != nil {
				return err
			}

			// results are printed here, not echoed by the console medium
			cfg := *a.cfg
			cfg.Console.Enabled = false
			rt, err := openRuntime(&cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.logger.Search(cmd.Context(), query, opts)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(cmd, res)
		},
	}

	cmd.Flags().StringVar(&shape, "shape", "", "JSON object every matching node must contain")
	cmd.Flags().BoolVar(&literal, "literal", false, "treat the value as a string even if it is valid JSON")
	cmd.Flags().BoolVar(&opts.Shallow, "shallow", false, "match top-level fields only")
	cmd.Flags().StringVar(&opts.Time, "time", "", `keep entries newer than this window, e.g. "10m" or "2 days"`)
	cmd.Flags().BoolVar(&opts.Intersect, "intersect", false, "apply --time to the matches instead of replacing them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	return cmd
}

func searchQuery(args []string, shape string, literal bool) (any, error) {
	var p fastjson.Parser
	if shape != "" {
		v, err := p.Parse(shape)
		if err != nil || v.Type() != fastjson.TypeObject {
			return nil, fmt.Errorf("--shape must be a JSON object")
		}
		return logpile.PartialShape{Fields: model.FromJSON(v).(map[string]any)}, nil
	}
	if len(args) == 0 {
		return nil, nil
	}
	if literal {
		return args[0], nil
	}
	// numbers, booleans and quoted strings keep their JSON type
	if v, err := p.Parse(args[0]); err == nil {
		switch v.Type() {
		case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse, fastjson.TypeString:
			return model.FromJSON(v), nil
		}
	}
	return args[0], nil
}

func printResult(cmd *cobra.Command, res logpile.Result) error {
	out := cmd.OutOrStdout()
	show := logpile.Console(logpile.ConsoleOptions{Stdout: out, Stderr: out})
	for _, e := range res.Entries {
		if _, err := show(cmd.Context(), e); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%d entries", len(res.Entries))
	if res.Skipped > 0 {
		fmt.Fprintf(out, " (%d unreadable records skipped)", res.Skipped)
	}
	fmt.Fprintln(out)
	return nil
}
