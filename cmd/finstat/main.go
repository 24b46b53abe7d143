package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/connectors"
	"finstat/internal/documents"
	"finstat/internal/listener"
	"finstat/internal/pipeline"
	"finstat/internal/publish"
	"finstat/internal/report"
	"finstat/internal/schema"
	"finstat/internal/server"
	"finstat/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(config.InitLogger(cfg.LogLevel, cfg.LogFormat))
	defer func() { _ = zap.L().Sync() }()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	// Commands that never touch the document index.
	switch cmd {
	case "schema:check":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", cfg.SchemaPath, "metric registry (yaml|json); empty for the built-in set")
		dump := fs.Bool("print", false, "print the registry as yaml")
		_ = fs.Parse(args)
		defs, err := schema.Load(*file)
		must(err)
		if *dump {
			out, err := schema.Marshal(defs)
			must(err)
			fmt.Print(string(out))
			return
		}
		fmt.Printf("schema ok metrics=%d: %s\n", len(defs), strings.Join(schema.Names(defs), ", "))
		return
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path")
		inType := fs.String("type", "", "pdf|html|xlsx|text (default from extension)")
		output := fs.String("output", "", "output xlsx path")
		asJSON := fs.Bool("json", false, "print the result as json")
		metrics := fs.String("metrics", "", "comma separated metric names to extract")
		_ = fs.Parse(args)
		if strings.TrimSpace(*input) == "" {
			must(eris.New("--input is required"))
		}
		kind := internal.DocumentKind(strings.ToLower(strings.TrimSpace(*inType)))
		if kind == "" {
			k, ok := pipeline.KindFromName(*input, "")
			if !ok {
				must(eris.Errorf("cannot infer --type for %s", *input))
			}
			kind = k
		}
		defs := loadSchema(cfg)
		if *metrics != "" {
			defs = schema.Subset(defs, strings.Split(*metrics, ","))
		}
		result, err := pipeline.RunFile(ctx, cfg.ExtractorOptions(), defs, kind, *input)
		must(err)
		if *output != "" {
			rows, sanity := pipeline.ExportRows(filepath.Base(*input), result)
			must(pipeline.ExportResultsToXLSX(rows, sanity, *output))
		}
		if *asJSON || *output == "" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			must(enc.Encode(result))
			return
		}
		counts := pipeline.CountResult(result, defs)
		fmt.Printf("run done items=%d high=%d medium=%d low=%d notFound=%d output=%s\n",
			len(result.Items), counts["high"], counts["medium"], counts["low"], counts["notFound"], *output)
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	switch cmd {
	case "doc:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "report file (pdf|html|xlsx|txt)")
		bank := fs.String("bank", "", "bank name")
		period := fs.String("period", "", "reporting period, e.g. FY2024")
		_ = fs.Parse(args)
		if strings.TrimSpace(*file) == "" {
			must(eris.New("--file is required"))
		}
		svc := documents.NewService(db, cfg.DataDir)
		doc, created, err := svc.AddFile(ctx, *file, bank, period, "cli")
		must(err)
		if !created {
			fmt.Printf("document already indexed id=%s name=%s\n", doc.ID, doc.Name)
			return
		}
		fmt.Printf("document added id=%s kind=%s pages=%d\n", doc.ID, doc.Kind, doc.Pages)
	case "doc:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "document id")
		batch := fs.Int("batch", 20, "max pending documents")
		_ = fs.Parse(args)
		processor := pipeline.NewProcessingService(db, cfg, loadSchema(cfg))
		if strings.TrimSpace(*id) != "" {
			res, err := processor.ProcessDocument(ctx, *id)
			must(err)
			fmt.Printf("processed document id=%s status=%s metrics=%d trace=%s\n", res.DocumentID, res.Status, res.NumMetrics, res.TraceID)
			return
		}
		summary, err := processor.ProcessPending(ctx, *batch)
		must(err)
		fmt.Printf("processed pending documents=%d processed=%d rejected=%d failed=%d\n",
			summary.Documents, summary.Processed, summary.Rejected, summary.Failed)
	case "doc:list":
		docs, err := db.ListDocuments()
		must(err)
		for _, d := range docs {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\n", d.ID, d.Status, d.Kind, d.Name, deref(d.Bank), deref(d.Period))
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		ids := fs.String("ids", "", "comma separated document ids")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(args)
		if strings.TrimSpace(*ids) == "" || strings.TrimSpace(*out) == "" {
			must(eris.New("--ids and --out are required"))
		}
		list := splitIDs(*ids)
		rows, err := db.GetExportRows(list)
		must(err)
		if len(rows) == 0 {
			must(eris.Errorf("no export rows for ids=%s", *ids))
		}
		sanity, err := db.GetSanityRows(list)
		must(err)
		must(pipeline.ExportResultsToXLSX(rows, sanity, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "report:html":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		ids := fs.String("ids", "", "comma separated document ids")
		out := fs.String("out", "", "output path (.html, or .md for markdown)")
		_ = fs.Parse(args)
		if strings.TrimSpace(*ids) == "" || strings.TrimSpace(*out) == "" {
			must(eris.New("--ids and --out are required"))
		}
		entries, err := report.Collect(db, splitIDs(*ids))
		must(err)
		md := report.Build(entries, loadSchema(cfg))
		page := []byte(md)
		if !strings.EqualFold(filepath.Ext(*out), ".md") {
			page, err = report.RenderHTML(md)
			must(err)
		}
		must(os.MkdirAll(filepath.Dir(*out), 0o755))
		must(os.WriteFile(*out, page, 0o644))
		fmt.Printf("report written documents=%d out=%s\n", len(entries), *out)
	case "publish":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "document id")
		_ = fs.Parse(args)
		doc, err := db.GetDocument(*id)
		must(err)
		result, err := db.GetResult(doc.ID)
		must(err)
		receipt, err := publish.NewClient(cfg).Publish(ctx, doc, result)
		must(err)
		fmt.Printf("published id=%s status=%d attempts=%d receipt=%s\n", doc.ID, receipt.StatusCode, receipt.Attempts, receipt.ID)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		conn, err := connectors.New(ctx, *provider, cfg)
		must(err)
		fetch := connectors.NewFetchService(db, filepath.Join(cfg.DataDir, "raw"), conn, documents.NewService(db, cfg.DataDir))
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d documents=%d duplicates=%d skipped=%d\n",
			*provider, result.Fetched, result.Stored, result.Documents, result.Duplicates, result.Skipped)
	case "inbox:listen":
		s := listener.NewService(db, cfg, loadSchema(cfg))
		must(s.Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(args)
		cfg.HTTPAddr = *addr
		must(server.New(db, cfg, loadSchema(cfg)).ListenAndServe(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func loadSchema(cfg config.Config) []internal.MetricDefinition {
	defs, err := schema.Load(cfg.SchemaPath)
	must(err)
	return defs
}

func splitIDs(value string) []string {
	var out []string
	for _, id := range strings.Split(value, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

func usage() {
	fmt.Println("usage: finstat <command>")
	fmt.Println("commands:")
	fmt.Println("  schema:check [--file=metrics.yaml] [--print]")
	fmt.Println("  run --input=report.pdf [--type=pdf|html|xlsx|text] [--output=out.xlsx] [--json] [--metrics=a,b]")
	fmt.Println("  doc:add --file=report.pdf [--bank=...] [--period=FY2024]")
	fmt.Println("  doc:process [--id=...] [--batch=20]")
	fmt.Println("  doc:list")
	fmt.Println("  export:xlsx --ids=a,b --out=./out/result.xlsx")
	fmt.Println("  report:html --ids=a,b --out=./out/report.html")
	fmt.Println("  publish --id=...")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  inbox:listen")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
