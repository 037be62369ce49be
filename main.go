package main

import (
	"bufio"
	"context"
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

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/dmarchi/docqa/api"
	"github.com/dmarchi/docqa/config"
	"github.com/dmarchi/docqa/database"
	"github.com/dmarchi/docqa/files"
	"github.com/dmarchi/docqa/history"
	"github.com/dmarchi/docqa/remote"
	"github.com/dmarchi/docqa/session"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func backendFactory(cfg config.Config, logger *log.Logger) session.BackendFactory {
	return func(apiKey string) (remote.Backend, error) {
		return remote.NewOpenAIBackend(remote.BackendOptions{
			APIKey:       apiKey,
			BaseURL:      cfg.OpenAIBaseURL,
			Model:        cfg.Model,
			PollInterval: cfg.PollInterval,
			PollTimeout:  cfg.PollTimeout,
			Logger:       logger,
		})
	}
}

// openRecorder connects history persistence when a DSN is configured. The
// caller owns the returned cleanup func.
func openRecorder(ctx context.Context, cfg config.Config, logger *log.Logger) (*history.Recorder, func(), error) {
	if cfg.PostgresDSN == "" {
		return nil, func() {}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}
	if err := database.EnsureHistorySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return history.NewRecorder(pool, logger), pool.Close, nil
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.Addr, "listen address")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorder, cleanup, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	var rec session.Recorder
	if recorder != nil {
		rec = recorder
	}
	server := api.New(cfg, backendFactory(cfg, logger), rec, logger)

	httpServer := &http.Server{Addr: *addr, Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		server.CloseAll(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("serving chat UI on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	fileList := flags.String("files", "", "comma-separated document paths to upload")
	dir := flags.String("dir", "", "directory of documents to upload")
	samples := flags.Bool("samples", false, "fetch the bundled sample documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorder, cleanup, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	var rec session.Recorder
	if recorder != nil {
		rec = recorder
	}

	quiet := log.New(os.Stderr, "", 0)
	sess, err := session.New(backendFactory(cfg, quiet), session.Options{
		APIKey:                cfg.OpenAIAPIKey,
		StoreName:             "docqa terminal session",
		PollInterval:          cfg.PollInterval,
		PollTimeout:           cfg.PollTimeout,
		ContinueOnUploadError: cfg.ContinueOnUploadError,
		Recorder:              rec,
		Logger:                quiet,
	})
	if err != nil {
		logger.Fatalf("session setup: %v", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer closeCancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Printf("close session: %v", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)

	if sess.State() == session.StateNoKey {
		fmt.Print("Enter your API key (used for this session only): ")
		if !scanner.Scan() {
			return
		}
		if err := sess.SetKey(strings.TrimSpace(scanner.Text())); err != nil {
			logger.Fatalf("set key: %v", err)
		}
	}

	batch, err := collectFiles(ctx, cfg, *fileList, *dir, *samples)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if len(batch) == 0 {
		logger.Fatalf("nothing to upload: pass -files, -dir, or -samples")
	}
	if err := sess.AddFiles(batch...); err != nil {
		logger.Fatalf("queue files: %v", err)
	}

	if err := uploadWithProgress(ctx, sess, len(batch)); err != nil {
		color.Red("Upload failed: %v", err)
		os.Exit(1)
	}
	color.Green("✓ %d document(s) indexed", len(batch))

	if suggestions := sess.Suggestions(); len(suggestions) > 0 {
		color.Cyan("\nTry asking:")
		for _, q := range suggestions {
			fmt.Printf("  • %s\n", q)
		}
	}

	runChatLoop(ctx, sess, scanner)
}

func collectFiles(ctx context.Context, cfg config.Config, fileList, dir string, samples bool) ([]files.InputFile, error) {
	var batch []files.InputFile

	for _, path := range strings.Split(fileList, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		file, err := files.Load(path)
		if err != nil {
			return nil, err
		}
		batch = append(batch, file)
	}

	if dir != "" {
		loaded, err := files.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		batch = append(batch, loaded...)
	}

	if samples {
		fetched, err := files.FetchSamples(ctx, cfg.SampleDocURLs)
		if err != nil {
			return nil, err
		}
		batch = append(batch, fetched...)
	}

	return batch, nil
}

func uploadWithProgress(ctx context.Context, sess *session.Session, total int) error {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString("Uploading documents...")),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	err := sess.ConfirmUpload(ctx, func(current, total int, fileName string) {
		bar.Describe(color.BlueString("Indexing %s (%d/%d)", fileName, current, total))
		_ = bar.Set(current - 1)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()
	fmt.Println()
	return nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func runChatLoop(ctx context.Context, sess *session.Session, scanner *bufio.Scanner) {
	color.Cyan("\nChat with your documents ('new' resets, 'exit' quits)")

	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			return
		}
		question := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return
		case "new":
			if err := sess.NewChat(ctx); err != nil {
				color.Red("New chat failed: %v", err)
				continue
			}
			color.Yellow("Chat reset. Add documents and re-run, or keep asking after a new upload.")
			return
		}

		spinner := getSpinner("Searching your documents...")
		msg, err := sess.Ask(ctx, question)
		_ = spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v", err)
			continue
		}

		assistantPrompt("\nAssistant: %s\n", msg.Content)
		if clickable := msg.ClickableCitations(); len(clickable) > 0 {
			fmt.Println("\nSources:")
			for i, citation := range clickable {
				snippet := citation.Quote
				if len(snippet) > 160 {
					snippet = snippet[:160] + "..."
				}
				fmt.Printf("%d. %s: %q\n", i+1, citation.FileName, snippet)
			}
		}
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if cfg.PostgresDSN == "" {
		logger.Fatalf("clear needs DOCQA_POSTGRES_DSN: without history there is no record of allocated stores")
	}

	if !*confirmed {
		fmt.Print("This will delete every remote document store this app still has on record. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorder, cleanup, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	backend, err := backendFactory(cfg, logger)(cfg.OpenAIAPIKey)
	if err != nil {
		logger.Fatalf("backend setup: %v", err)
	}
	stores := remote.NewStoreClient(backend, logger)

	records, err := recorder.OpenStores(ctx)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if len(records) == 0 {
		logger.Println("no stores on record")
		return
	}

	for _, record := range records {
		if err := stores.Delete(ctx, remote.StoreID(record.StoreID)); err != nil {
			logger.Printf("delete store %s: %v", record.StoreID, err)
			continue
		}
		if err := recorder.MarkStoreDeleted(ctx, record.StoreID); err != nil {
			logger.Printf("mark store deleted %s: %v", record.StoreID, err)
		}
	}
	logger.Printf("released %d store(s)", len(records))
}

func printUsage() {
	fmt.Println("Usage: docqa <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the browser chat UI")
	fmt.Println("  chat     Upload documents and chat in the terminal (-files, -dir, -samples)")
	fmt.Println("  clear    Delete remote document stores recorded in history")
}
