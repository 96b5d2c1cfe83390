package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ciricc/court-transcriber/internal/app"
	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/export"
	"github.com/ciricc/court-transcriber/internal/pipeline"
	"github.com/ciricc/court-transcriber/internal/transcriber"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code so deferred cleanup happens before exit.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath = fs.String("config", "config.yaml", "path to config.yaml")
		caseID  = fs.String("case", "", "case identifier attached to the transcript")
		format  = fs.String("format", "json", "output format: json, txt or md")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: transcribe [flags] recording.wav\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	wavPath := fs.Arg(0)

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(stderr, "", log.LstdFlags)

	application, err := app.New(ctx, *cfgPath)
	if err != nil {
		logger.Printf("init error: %v", err)
		return 1
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Printf("close: %v", err)
		}
	}()

	buf, err := load(wavPath)
	if err != nil {
		logger.Printf("load %s: %v", wavPath, err)
		return 1
	}

	t, err := application.Pipeline.Run(ctx, pipeline.Request{
		Audio:      buf,
		SourceFile: wavPath,
		CaseID:     *caseID,
	})
	if err != nil {
		logger.Printf("transcribe: %v", err)
		return 1
	}

	if *format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(t)
	} else {
		err = export.Write(stdout, t, export.Format(*format))
	}
	if err != nil {
		logger.Printf("write output: %v", err)
		return 1
	}
	return 0
}

func load(path string) (audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, err
	}
	defer f.Close()

	buf, err := audio.Decode(f)
	if err != nil {
		return audio.Buffer{}, err
	}
	return audio.Resample(buf, transcriber.SampleRate)
}
