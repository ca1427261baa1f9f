package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/model"
)

// compileFlags holds the flags of the compile command.
type compileFlags struct {
	kind           string
	where          []string
	orderBy        []string
	returns        []string
	prefetch       []string
	skip           int
	limit          int
	count          bool
	aggregate      string
	includeDeleted bool
}

// compiledOutput is the JSON form of a compiled statement.
type compiledOutput struct {
	Text   string         `json:"text"`
	Params map[string]any `json:"params"`
}

func (c *cli) newCompileCmd() *cobra.Command {
	var f compileFlags

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a filter to Cypher without running it",
		Long: `Compile a filter over a declared kind and print the statement and its
parameters. Lookups use field__op=value; values are converted to the
field's declared type and "in" takes a comma separated list.

Example:
  node4j compile --kind Person --where age__gt=40 --where name__startswith=A --order-by -age`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCompile(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.kind, "kind", "k", "", "Entity kind to match (required)")
	flags.StringArrayVarP(&f.where, "where", "w", nil, "Lookup as field__op=value (repeatable, ANDed)")
	flags.StringSliceVar(&f.orderBy, "order-by", nil, "Fields to order by; prefix with - for descending")
	flags.StringSliceVar(&f.returns, "return", nil, "Fields to project (default: all)")
	flags.StringSliceVar(&f.prefetch, "prefetch", nil, "Relationships to load in the same statement")
	flags.IntVar(&f.skip, "skip", 0, "Rows to skip")
	flags.IntVar(&f.limit, "limit", 0, "Maximum rows to return")
	flags.BoolVar(&f.count, "count", false, "Compile a count instead of a read")
	flags.StringVar(&f.aggregate, "aggregate", "", "Compile fn:field (count, sum, avg, min, max) instead of a read")
	flags.BoolVar(&f.includeDeleted, "include-deleted", false, "Disable soft delete and TTL filtering")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func (c *cli) runCompile(cmd *cobra.Command, f compileFlags) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	kind, err := reg.Kind(f.kind)
	if err != nil {
		return err
	}

	pred, err := parseWhere(kind, f.where)
	if err != nil {
		return err
	}

	comp, err := c.compiler()
	if err != nil {
		return err
	}
	opts := compiler.Options{
		Return:         f.returns,
		Prefetch:       f.prefetch,
		OrderBy:        f.orderBy,
		Skip:           f.skip,
		Limit:          f.limit,
		IncludeDeleted: f.includeDeleted,
	}

	var stmt compiler.Statement
	switch {
	case f.count:
		stmt, err = comp.CompileCount(kind, pred, opts)
	case f.aggregate != "":
		fn, field, _ := strings.Cut(f.aggregate, ":")
		stmt, err = comp.CompileAggregate(kind, pred, compiler.AggregateFunc(fn), field, opts)
	default:
		stmt, err = comp.Compile(kind, pred, opts)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if c.jsonOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(compiledOutput{Text: stmt.Text, Params: stmt.Params})
	}

	fmt.Fprintln(w, stmt.Text)
	if len(stmt.Params) > 0 {
		fmt.Fprintln(w)
		keys := make([]string, 0, len(stmt.Params))
		for k := range stmt.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "$%s = %s\n", k, formatParam(stmt.Params[k]))
		}
	}
	return nil
}

// parseWhere turns field__op=value lookups into a predicate, converting
// each value to the declared type of its field. No lookups yields nil.
func parseWhere(kind *model.EntityKind, exprs []string) (filter.Predicate, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	lookups := make(map[string]any, len(exprs))
	for _, expr := range exprs {
		key, raw, ok := strings.Cut(expr, "=")
		if !ok || key == "" {
			return nil, NewCLIError(ExitUsage, fmt.Sprintf("invalid --where %q: expected field__op=value", expr))
		}
		path, op := filter.ParseLookup(key)
		value, err := coerce(fieldType(kind, path), op, raw)
		if err != nil {
			return nil, WrapError(ExitUsage, fmt.Sprintf("invalid value for %s", key), err)
		}
		lookups[key] = value
	}
	return filter.Where(lookups), nil
}

// fieldType resolves the declared type of path, following one hop. Unknown
// paths resolve to TypeAny so the compiler reports them.
func fieldType(kind *model.EntityKind, path string) model.FieldType {
	owner, name := kind, path
	if hop, rest, ok := strings.Cut(path, "."); ok {
		rel, found := kind.Relationship(hop)
		if !found || rel.TargetKind() == nil {
			return model.TypeAny
		}
		owner, name = rel.TargetKind(), rest
	}
	f, ok := owner.Field(name)
	if !ok {
		return model.TypeAny
	}
	return f.Type
}

// coerce converts a raw flag value for op against a field of type ft.
func coerce(ft model.FieldType, op filter.Operator, raw string) (any, error) {
	switch {
	case op == filter.IsNull:
		return strconv.ParseBool(raw)
	case op == filter.In:
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			v, err := coerceScalar(ft, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case ft.IsList():
		return coerceScalar(ft.Elem(), raw)
	case op.Textual():
		return raw, nil
	}
	return coerceScalar(ft, raw)
}

func coerceScalar(ft model.FieldType, raw string) (any, error) {
	switch ft {
	case model.TypeInt:
		return strconv.ParseInt(raw, 10, 64)
	case model.TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case model.TypeBool:
		return strconv.ParseBool(raw)
	case model.TypeDateTime:
		return time.Parse(time.RFC3339, raw)
	case model.TypeDate:
		return time.Parse(time.DateOnly, raw)
	}
	return raw, nil
}

func formatParam(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
