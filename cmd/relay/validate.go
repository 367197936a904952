package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/fwojciec/relay/schema"
	"github.com/fwojciec/relay/yaml"
	"github.com/spf13/cobra"
)

type validateOptions struct {
	schemaPath   string
	name         string
	strict       bool
	allowUnknown bool
	maxDepth     int
	json         bool
}

func newValidateCmd(a *app) *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate DOC",
		Short: "Validate a JSON document against a schema",
		Long: `Validate checks DOC ("-" for stdin) against the schema in --schema FILE
or the schema registered under --name in the configuration file, and
prints every violation. The command fails when the document is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate(args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "Path to a JSON or YAML schema document")
	cmd.Flags().StringVar(&opts.name, "name", "", "Name of a schema registered in the configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Reject properties not declared by the schema")
	cmd.Flags().BoolVar(&opts.allowUnknown, "allow-unknown", false, "Ignore undeclared properties even where the schema forbids them")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "Bound on nested $ref expansion (0 = default)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("schema", "name")
	cmd.MarkFlagsOneRequired("schema", "name")
	cmd.MarkFlagsMutuallyExclusive("strict", "allow-unknown")
	return cmd
}

func (a *app) validate(doc string, opts validateOptions) error {
	v, err := a.validator(opts)
	if err != nil {
		return err
	}
	data, err := a.readDoc(doc)
	if err != nil {
		return err
	}
	res, err := v.ValidateJSON(data)
	if err != nil {
		return err
	}

	if opts.json {
		out, err := relayjson.MarshalValidation(res)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s\n", out)
	} else {
		st := newStyles(defaultTheme())
		if res.Valid() {
			fmt.Fprintf(a.stdout, "%s %s\n", st.success.Render("✓ valid"), st.muted.Render(v.Name()))
		} else {
			fmt.Fprintf(a.stdout, "%s %s\n", st.failure.Render("✗ "+plural(len(res.Violations), "violation")), st.muted.Render(v.Name()))
			for _, viol := range res.Violations {
				fmt.Fprintf(a.stdout, "  %s\n", viol)
			}
		}
	}
	if !res.Valid() {
		return errReported
	}
	return nil
}

func (a *app) validator(opts validateOptions) (*schema.Validator, error) {
	if opts.name != "" {
		if opts.strict || opts.allowUnknown || opts.maxDepth != 0 {
			return nil, errors.New("--strict, --allow-unknown and --max-depth apply to --schema; registered schemas carry their own options")
		}
		f, err := a.loadConfig()
		if err != nil {
			return nil, err
		}
		reg, err := f.Registry()
		if err != nil {
			return nil, fmt.Errorf("compile schemas: %w", err)
		}
		v, ok := reg.Lookup(opts.name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", relay.ErrSchemaNotFound, opts.name)
		}
		return v, nil
	}

	doc, err := yaml.LoadSchema(opts.schemaPath)
	if err != nil {
		return nil, err
	}
	return schema.Compile(relay.SchemaDefinition{
		Name:   strings.TrimSuffix(filepath.Base(opts.schemaPath), filepath.Ext(opts.schemaPath)),
		Schema: doc,
		Options: relay.SchemaOptions{
			Strict:       opts.strict,
			AllowUnknown: opts.allowUnknown,
			MaxDepth:     opts.maxDepth,
		},
	})
}

func (a *app) readDoc(doc string) ([]byte, error) {
	if doc == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(doc)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}
