package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrdadan/rodplus/internal/browser"
	"github.com/ahrdadan/rodplus/internal/element"
)

type inspectOptions struct {
	xpath     bool
	axis      string
	filter    browser.FilterSpec
	format    string
	timeout   time.Duration
	synthetic bool
}

func newInspectCommand(st *state) *cobra.Command {
	return newInspectCommandWith(st, &inspectOptions{})
}

func newInspectCommandWith(st *state, opts *inspectOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect URL SELECTOR",
		Short: "Print an element, or the elements along an axis from it",
		Example: `  rodplus inspect https://example.com h1
  rodplus inspect https://example.com "//ul" --xpath --axis children --tag li --format yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			target := browser.Target{
				URL:      args[0],
				Selector: args[1],
				XPath:    opts.xpath,
				Options:  browser.DefaultPageOptions(),
			}
			target.Options.Timeout = opts.timeout
			target.Options.SyntheticEvents = opts.synthetic
			if err := target.Validate(); err != nil {
				return err
			}

			manager, err := startBrowser(cmd.Context(), st.cfg.Browser, st.logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer func() { _ = manager.Stop() }()

			infos, err := opts.run(cmd.Context(), manager, target)
			if err != nil {
				return err
			}
			return writeInfos(cmd.OutOrStdout(), opts.format, infos)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.xpath, "xpath", false, "treat SELECTOR as an xpath expression")
	flags.StringVar(&opts.axis, "axis", "", "walk this axis from the element (parent, children, descendants, ancestors, next, prev, next_all, prev_all, siblings)")
	flags.StringVar(&opts.filter.Tag, "tag", "", "keep elements with this tag")
	flags.StringVar(&opts.filter.ID, "id", "", "keep elements with this id")
	flags.StringVar(&opts.filter.Class, "class", "", "keep elements carrying this class")
	flags.StringVar(&opts.filter.Text, "text", "", "keep elements whose text contains this")
	flags.StringToStringVar(&opts.filter.Attrs, "attr", nil, "keep elements with attribute=value")
	flags.StringVar(&opts.filter.Selector, "matches", "", "keep elements matching this CSS selector")
	flags.StringVarP(&opts.format, "format", "f", "text", "output format: text, json or yaml")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "page timeout")
	flags.BoolVar(&opts.synthetic, "synthetic", false, "dispatch synthetic DOM events")
	flags.String("browser-bin", "", "Chrome binary to launch")
	flags.String("remote-url", "", "attach to a running browser at this CDP endpoint")
	bindFlag(flags, "browser-bin", "browser.bin")
	bindFlag(flags, "remote-url", "browser.remote_url")
	return cmd
}

func (o *inspectOptions) query() browser.TraverseQuery {
	return browser.TraverseQuery{Axis: element.Axis(o.axis), Filter: o.filter}
}

func (o *inspectOptions) hasFilter() bool {
	f := o.filter
	return f.Tag != "" || f.ID != "" || f.Class != "" || f.Text != "" || f.Selector != "" || len(f.Attrs) > 0
}

func (o *inspectOptions) validate() error {
	switch o.format {
	case "":
		o.format = "text"
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", o.format)
	}
	if o.axis == "" {
		if o.hasFilter() {
			return fmt.Errorf("filters require --axis")
		}
		return nil
	}
	return o.query().Validate()
}

func (o *inspectOptions) run(ctx context.Context, client browser.Client, target browser.Target) ([]browser.ElementInfo, error) {
	if o.axis == "" {
		info, err := client.InspectElement(ctx, target)
		if err != nil {
			return nil, err
		}
		return []browser.ElementInfo{*info}, nil
	}
	return client.TraverseElement(ctx, target, o.query())
}

// writeInfos renders infos: text prints one display line per element.
func writeInfos(w io.Writer, format string, infos []browser.ElementInfo) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		return writeYAML(w, infos)
	default:
		if len(infos) == 0 {
			_, err := fmt.Fprintln(w, "no elements")
			return err
		}
		var b strings.Builder
		for _, info := range infos {
			fmt.Fprintf(&b, "%-6s %s\n", info.Tag, info.Display)
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
