package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/acksell/tablekit/dynamodb/avcodec"
	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/ddbsdk"
	"github.com/acksell/tablekit/dynamodb/ddbui"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/acksell/tablekit/dynamodb/schema"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func runValidate(args []string, out io.Writer) error {
	fs, c := newFlagSet("validate", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		c.schema = fs.Arg(0)
	}
	if err := c.merge(); err != nil {
		return err
	}
	s, err := schema.Load(c.schema)
	if err != nil {
		return err
	}
	reg, err := s.Build()
	if err != nil {
		return err
	}

	d := reg.Table.Delimiter()
	fmt.Fprintf(out, "table %s (%s, %s)\n", reg.Table.Name(), reg.Table.PartitionKeyName(), reg.Table.SortKeyName())
	for _, m := range reg.Table.Models() {
		fmt.Fprintf(out, "  model %s: %s / %s\n", m.Tag(), m.PartitionRecipe().Pattern(d), m.SortRecipe().Pattern(d))
	}
	for _, name := range sortedKeys(reg.Partitions) {
		fmt.Fprintf(out, "  partition %s: %s\n", name, strings.Join(reg.Partitions[name].Tags(), ", "))
	}
	for _, g := range reg.Table.GSIs() {
		fmt.Fprintf(out, "  gsi %s: %s\n", g.Name(), strings.Join(g.ModelTags(), ", "))
	}
	return nil
}

func runCreateTable(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("create-table", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	err = e.client.CreateTable(ctx)
	var inUse *types.ResourceInUseException
	switch {
	case errors.As(err, &inUse):
		fmt.Fprintf(out, "table %s already exists\n", e.reg.Table.Name())
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(out, "created table %s\n", e.reg.Table.Name())
	return nil
}

func runPut(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("put", out)
	tag := fs.String("model", "", "model tag (required)")
	unique := fs.Bool("unique", false, "fail if an item with the same key exists")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("put takes exactly one JSON object of fields")
	}
	fields, err := parseFields(fs.Arg(0))
	if err != nil {
		return err
	}

	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	model, err := e.model(*tag)
	if err != nil {
		return err
	}

	var opts []ddbsdk.PutOption
	if *unique {
		opts = append(opts, ddbsdk.FailIfExists())
	}
	item, err := e.client.Put(ctx, model, fields, opts...)
	if err != nil {
		return err
	}
	return writeItem(out, item)
}

func runGet(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("get", out)
	tag := fs.String("model", "", "model tag (required)")
	eventual := fs.Bool("eventual", false, "eventually consistent read")
	project := fs.String("project", "", "comma separated fields to return")
	if err := fs.Parse(args); err != nil {
		return err
	}
	values, err := parseValues(fs.Args())
	if err != nil {
		return err
	}

	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	model, err := e.model(*tag)
	if err != nil {
		return err
	}
	key, err := model.Key(values)
	if err != nil {
		return err
	}

	var opts []ddbsdk.GetOption
	if *eventual {
		opts = append(opts, ddbsdk.WithEventualConsistency())
	}
	if *project != "" {
		opts = append(opts, ddbsdk.WithProjection(strings.Split(*project, ",")...))
	}
	item, err := e.client.Get(ctx, key, opts...)
	if err != nil {
		return err
	}
	if item == nil {
		return &ddberrors.NotFoundError{Partition: key.Partition, Sort: key.Sort}
	}
	return writeItem(out, item)
}

func runScan(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("scan", out)
	var tags []string
	fs.Func("model", "model tag to include, repeatable (default: all)", func(s string) error {
		tags = append(tags, s)
		return nil
	})
	pageSize := fs.Int("page-size", 0, "items per request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	scan := e.client.Scan().EventuallyConsistent()
	if len(tags) > 0 {
		scan = scan.Tags(tags...)
	} else {
		tags = e.reg.Table.Tags()
	}
	if *pageSize > 0 {
		scan = scan.PageSize(int32(*pageSize))
	}
	groups, err := scan.Exec(ctx)
	if err != nil {
		return err
	}
	e.log.Debug().Int("items", groups.Count()).Msg("scan done")
	for _, tag := range tags {
		for _, item := range groups[tag] {
			if err := writeItem(out, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func runUI(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("ui", out)
	addr := fs.String("addr", ":8080", "address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(out, "serving %s on http://localhost%s, press Ctrl+C to stop\n", e.reg.Table.Name(), *addr)
	return ddbui.NewServer(ddbui.ServerConfig{Addr: *addr}, e.client, e.reg, e.log).Run(ctx)
}

func (e *env) model(tag string) (*table.Model, error) {
	if tag == "" {
		return nil, ddberrors.NewValidationError("model", "-model is required")
	}
	m, ok := e.reg.Models[tag]
	if !ok {
		return nil, ddberrors.NewValidationError("model", fmt.Sprintf("unknown model %q", tag))
	}
	return m, nil
}

// parseFields decodes a JSON object into item attributes.
func parseFields(doc string) (map[string]types.AttributeValue, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return nil, ddberrors.NewValidationError("fields", fmt.Sprintf("invalid JSON object: %v", err))
	}
	return avcodec.FromPlain(fields)
}

// parseValues reads field=value pairs.
func parseValues(args []string) (keys.Values, error) {
	v := make(keys.Values, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, ddberrors.NewValidationError(arg, "expected field=value")
		}
		v[name] = value
	}
	return v, nil
}

// writeItem prints item as one line of plain JSON.
func writeItem(out io.Writer, item ddbsdk.Item) error {
	doc, err := avcodec.ToPlain(item)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
