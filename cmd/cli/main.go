package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/echosig/echosig/pkg/config"
	"github.com/echosig/echosig/pkg/echosig/capture"
	"github.com/echosig/echosig/pkg/echosig/engine"
	"github.com/echosig/echosig/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

func main() {
	log := logger.GetLogger()
	printBanner()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Infof("executing command: %s", command)

	switch command {
	case "add":
		handleAdd()
	case "match":
		handleMatch()
	case "listen":
		handleListen()
	case "list":
		handleList()
	case "delete":
		handleDelete()
	case "clean":
		handleClean()
	case "reset":
		handleReset()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Println(`
  ___         _          ____  _
 | __|__ _ __| |_  ___  / __ \(_)__ _
 | _|/ _' | _| ' \/ _ \ \__ \| / _' |
 |___\__,_\__|_||_\___/ |___/|_\__, |
                                |___/
   Acoustic fingerprinting CLI
`)
}

func loadConfig() *config.Config {
	path := os.Getenv("ECHOSIG_CONFIG")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("loading config %s: %v\n", path, err)
		os.Exit(1)
	}
	return cfg
}

func openEngine() *engine.Engine {
	e, err := engine.Open(loadConfig())
	if err != nil {
		fmt.Printf("failed to open index: %v\n", err)
		os.Exit(1)
	}
	return e
}

func handleAdd() {
	log := logger.GetLogger()
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	recursive := addCmd.Bool("recursive", false, "treat the path as a directory and ingest every file in it")
	addCmd.Parse(os.Args[2:])

	args := addCmd.Args()
	if len(args) == 0 {
		fmt.Println("Usage: echosig add [-recursive] <audio_file_or_dir>")
		os.Exit(1)
	}

	paths, err := resolvePaths(args[0], *recursive)
	if err != nil {
		fmt.Printf("resolving input: %v\n", err)
		os.Exit(1)
	}

	e := openEngine()
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	bar := progressbar.Default(int64(len(paths)), "ingesting")
	results := e.AddSongs(ctx, paths)
	bar.Add(len(paths))

	var ok, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			log.Warnf("ingest failed for %s: %v", r.Path, r.Err)
		case r.Skipped:
			skipped++
		default:
			ok++
		}
	}
	fmt.Printf("\nIngested %d, skipped %d (already indexed), failed %d\n", ok, skipped, failed)
}

func resolvePaths(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	if !recursive {
		return nil, fmt.Errorf("%s is a directory; pass -recursive to ingest it", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func handleMatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: echosig match <audio_file>")
		os.Exit(1)
	}
	audioPath := os.Args[2]

	e := openEngine()
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := e.Recognize(ctx, audioPath)
	if err != nil {
		fmt.Printf("No match: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Match: %q (song id %d)\n", result.SongName, result.SongID)
	fmt.Printf("Confidence: %d aligned landmarks, offset %.5fs\n", result.Confidence, result.OffsetSeconds)
}

func handleListen() {
	cfg := loadConfig()
	e := openEngine()
	defer e.Close()

	rec, err := capture.New(cfg.SampleRate, cfg.MicChannels)
	if err != nil {
		fmt.Printf("opening microphone: %v\n", err)
		os.Exit(1)
	}
	defer rec.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rec.Start(ctx); err != nil {
		fmt.Printf("starting microphone capture: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Listening... Ctrl+C to stop and match the last few seconds.")
	<-ctx.Done()

	const windowSeconds = 5.0
	channels, sampleRate := rec.Tail(windowSeconds)
	if len(channels) == 0 || len(channels[0]) == 0 {
		fmt.Println("No audio captured.")
		return
	}

	result, err := e.RecognizeSamples(channels, sampleRate)
	if err != nil {
		fmt.Printf("No match: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Match: %q (song id %d)\n", result.SongName, result.SongID)
	fmt.Printf("Confidence: %d aligned landmarks, offset %.5fs\n", result.Confidence, result.OffsetSeconds)
}

func handleList() {
	e := openEngine()
	defer e.Close()

	songs, err := e.List()
	if err != nil {
		fmt.Printf("listing songs: %v\n", err)
		os.Exit(1)
	}
	if len(songs) == 0 {
		fmt.Println("No songs indexed.")
		return
	}
	for _, s := range songs {
		fmt.Printf("%d\t%s\n", s.ID, s.Name)
	}
}

func handleDelete() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: echosig delete <song_id>")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(os.Args[2], 10, 32)
	if err != nil {
		fmt.Printf("invalid song id: %v\n", err)
		os.Exit(1)
	}

	e := openEngine()
	defer e.Close()

	if err := e.Delete(uint32(id)); err != nil {
		fmt.Printf("deleting song: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted song %d\n", id)
}

func handleClean() {
	e := openEngine()
	defer e.Close()

	if err := e.CleanCrashed(); err != nil {
		fmt.Printf("cleaning crashed ingests: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Removed any songs left behind by an interrupted ingest.")
}

func handleReset() {
	e := openEngine()
	defer e.Close()

	if err := e.Reset(); err != nil {
		fmt.Printf("resetting index: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Index dropped and recreated; every song and landmark is gone.")
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  echosig add [-recursive] <audio_file_or_dir>")
	fmt.Println("  echosig match <audio_file>")
	fmt.Println("  echosig listen")
	fmt.Println("  echosig list")
	fmt.Println("  echosig delete <song_id>")
	fmt.Println("  echosig clean")
	fmt.Println("  echosig reset")
}
