package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/logpile/internal/model"
)

func newEmitCmd(a *app) *cobra.Command {
	var (
		level  string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "emit [message...]",
		Short: "Write one log entry to every configured medium",
		Example: `  logpile emit --level error "payment failed" --field order=42 --field retry=true
  logpile emit --field 'request={"method":"post"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.ValidLevel(level) {
				return fmt.Errorf("unknown level %q", level)
			}
			extra, err := parseFields(fields)
			if err != nil {
				return err
			}

			rt, err := openRuntime(a.cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			parts := make([]any, 0, len(args)+1)
			for _, msg := range args {
				parts = append(parts, msg)
			}
			if len(extra) > 0 {
				parts = append(parts, extra)
			}

			persistErr := rt.logger.Persist(cmd.Context(), model.ParseLevel(level), parts...)
			if err := rt.Close(); err != nil {
				return err
			}
			return persistErr
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", string(model.LevelInfo), "entry severity")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "extra key=value field; JSON values are decoded")
	return cmd
}

// parseFields turns key=value pairs into a map. Values that parse as JSON
// keep their JSON type, anything else is a string.
func parseFields(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	var p fastjson.Parser
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", pair)
		}
		if v, err := p.Parse(raw); err == nil {
			out[key] = model.FromJSON(v)
		} else {
			out[key] = raw
		}
	}
	return out, nil
}
