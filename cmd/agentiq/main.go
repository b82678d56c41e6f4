package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"agentiq/internal/config"
	"agentiq/internal/domain"
	"agentiq/internal/httpapi"
	"agentiq/internal/logging"
	"agentiq/internal/tui"
)

const usage = `Usage: agentiq [--config=config.yaml] <command> [flags] [args]

Commands:
  serve                         run the HTTP API
  ingest  --tenant=ID files...  index documents for a tenant
  ask     --tenant=ID question  answer a question from a tenant's documents
  sources --tenant=ID           list a tenant's indexed sources
  delete  --tenant=ID source    remove a tenant's source
  purge   source                remove a source across all tenants
  stats                         print index totals
  tui     --tenant=ID [files]   interactive question loop
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/agentiq/config.yaml if not provided)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Log.Level)
	a, err := build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error(err, "shutdown")
		}
	}()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		err = runServe(ctx, a, rest)
	case "ingest":
		err = runIngest(ctx, a, rest)
	case "ask":
		err = runAsk(ctx, a, rest)
	case "sources":
		err = runSources(a, rest)
	case "delete":
		err = runDelete(ctx, a, rest)
	case "purge":
		err = runPurge(ctx, a, rest)
	case "stats":
		err = runStats(a)
	case "tui":
		err = runTUI(ctx, a, rest)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		stop()
		_ = a.Close()
		log.Fatalf("%s: %v", cmd, err)
	}
}

// tenantFlags parses the common --tenant flag for a subcommand.
func tenantFlags(name string, args []string, extra func(fs *flag.FlagSet)) (string, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	tenant := fs.String("tenant", "", "Tenant id")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if *tenant == "" {
		return "", nil, fmt.Errorf("--tenant is required: %w", domain.ErrTenantRequired)
	}
	return *tenant, fs.Args(), nil
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := httpapi.NewServer(a.svc, a.history, int64(a.cfg.Server.MaxUploadMB)<<20, a.logger)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", *addr, "records", a.index.Len(), "degraded", a.index.Degraded())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runIngest(ctx context.Context, a *app, args []string) error {
	tenant, files, err := tenantFlags("ingest", args, nil)
	if err != nil {
		return err
	}
	results, err := a.svc.IngestPaths(ctx, tenant, files)
	for _, r := range results {
		fmt.Printf("%s: %d chunks\n", r.Source, r.Chunks)
	}
	return err
}

func runAsk(ctx context.Context, a *app, args []string) error {
	var topK int
	var asJSON bool
	tenant, rest, err := tenantFlags("ask", args, func(fs *flag.FlagSet) {
		fs.IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (0 uses the configured default)")
		fs.BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	})
	if err != nil {
		return err
	}
	query := strings.Join(rest, " ")
	result, err := a.svc.Ask(ctx, tenant, query, topK)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Println(result.Answer)
	fmt.Printf("\nConfidence: %.0f%%  (%d ms)\n", result.Confidence, result.ElapsedMS)
	for _, s := range result.Sources {
		fmt.Printf("  - %s, chunk %d (%.1f%%)\n", s.Source, s.ChunkIndex, s.Similarity)
	}
	return nil
}

func runSources(a *app, args []string) error {
	tenant, _, err := tenantFlags("sources", args, nil)
	if err != nil {
		return err
	}
	list, err := a.svc.Sources(tenant)
	if err != nil {
		return err
	}
	for _, s := range list.Sources {
		fmt.Println(s)
	}
	fmt.Printf("%d sources, %d chunks\n", list.Count, list.TotalChunks)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	tenant, rest, err := tenantFlags("delete", args, nil)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errors.New("expected exactly one source")
	}
	n, err := a.svc.DeleteSource(ctx, tenant, rest[0])
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d chunks of %s\n", n, rest[0])
	return nil
}

func runPurge(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly one source")
	}
	n, err := a.admin.PurgeSource(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("purged %d chunks of %s\n", n, args[0])
	return nil
}

func runStats(a *app) error {
	records, sources := a.admin.Stats()
	fmt.Printf("records: %d\nsources: %d\ndimension: %d\ndegraded: %t\n",
		records, len(sources), a.index.Dimension(), a.index.Degraded())
	return nil
}

func runTUI(ctx context.Context, a *app, args []string) error {
	tenant, files, err := tenantFlags("tui", args, nil)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		results, err := a.svc.IngestPaths(ctx, tenant, files)
		if err != nil {
			return err
		}
		a.logger.Info("ingested", "files", len(results))
	}
	list, err := a.svc.Sources(tenant)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("Tenant %s: %d sources, %d chunks indexed.", tenant, list.Count, list.TotalChunks)

	m := tui.New(a.svc, tenant, a.cfg.Retrieval.TopK, summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
