package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ytget/ytaudio"
	"github.com/ytget/ytaudio/pkg/client"
)

func main() {
	var (
		flagTimeout     time.Duration
		flagRetries     int
		flagProxy       string
		flagLogLevel    string
		flagConcurrency int
	)

	flag.DurationVar(&flagTimeout, "http-timeout", 30*time.Second, "HTTP timeout (e.g., 30s, 1m)")
	flag.IntVar(&flagRetries, "retries", 3, "HTTP retries for transient errors")
	flag.StringVar(&flagProxy, "proxy", "", "Proxy URL (http/https/socks)")
	flag.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.IntVar(&flagConcurrency, "concurrency", 2, "Parallelism when resolving multiple videos")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <video_id_or_url> [...]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	httpClient := client.NewWith(client.Config{
		Timeout:  flagTimeout,
		Retries:  flagRetries,
		ProxyURL: flagProxy,
	})

	res := ytaudio.New().
		WithClient(httpClient).
		WithLogLevel(flagLogLevel)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(flagConcurrency)

	var outMu sync.Mutex
	for _, arg := range args {
		arg := arg
		g.Go(func() error {
			videoID, err := ytaudio.ExtractVideoID(arg)
			if err != nil {
				return err
			}

			rs, mode, err := res.ResolveStream(ctx, videoID)
			if err != nil {
				return fmt.Errorf("%s: %w", videoID, err)
			}

			outMu.Lock()
			defer outMu.Unlock()
			fmt.Printf("%s\t%s\t%s/%s\t%d bps\t%s\n",
				videoID, mode, rs.Format.MimeType, rs.Format.Codec, rs.Format.Bitrate, rs.SignedURL)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
