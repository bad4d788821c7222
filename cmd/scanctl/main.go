// scanctl runs one recognition job from the command line and prints
// the live narrative, then the recognized text.
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/swipswaps/paddle-ocr/config"
	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/internal/orchestrator"
	"github.com/swipswaps/paddle-ocr/internal/watchdog"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

func main() {
	cfg := config.Load()

	backendURL := flag.String("backend", cfg.BackendURL, "OCR backend base URL")
	timeout := flag.Duration("timeout", cfg.UploadTimeout, "job ceiling")
	quiet := flag.Bool("quiet", false, "suppress the narrative, print only the final text")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(
		logger.WithLevel("warn"),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	runner := orchestrator.New(orchestrator.Config{
		BackendURL:       *backendURL,
		StreamPath:       cfg.StreamPath,
		UploadTimeout:    *timeout,
		WatchdogTick:     cfg.WatchdogTick,
		SilenceThreshold: cfg.SilenceThreshold,
		Rules:            watchdog.DefaultRules(),
	}, log)

	raw := models.RawImage{
		Name:      filepath.Base(path),
		MediaType: mime.TypeByExtension(filepath.Ext(path)),
		Data:      data,
	}

	onEntry := func(e models.LogEntry) {
		if *quiet {
			return
		}
		marker := " "
		if e.Synthetic {
			marker = "~"
		}
		fmt.Fprintf(os.Stderr, "%s %s %s\n", e.Timestamp.Format("15:04:05.000"), marker, e.Message)
	}

	result, _, err := runner.Run(context.Background(), raw, onEntry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "job failed: %v\n", err)
		os.Exit(1)
	}

	if result.Recovered {
		fmt.Fprintln(os.Stderr, "warning: partial result recovered from the log stream, not a confirmed success")
	}
	fmt.Print(result.RawText)
	if result.RawText != "" && result.RawText[len(result.RawText)-1] != '\n' {
		fmt.Println()
	}

	if !result.Success {
		os.Exit(1)
	}
}
