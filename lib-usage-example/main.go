package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sw33tLie/ruleconv/pkg/fetcher"
	"github.com/sw33tLie/ruleconv/pkg/pipeline"
)

func main() {
	// Usage: go run *.go -out ./rules https://example.com/AdBlock.list https://example.com/Telegram.yaml

	outFlag := flag.String("out", ".", "Output directory")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Println("At least one source URL or path is required.")
		return
	}

	f, err := fetcher.New(fetcher.Options{Retries: 2})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// No Compiler: only the JSON rule sets are written.
	res, err := pipeline.Run(context.Background(), pipeline.Config{
		Fetcher:   f,
		OutputDir: *outFlag,
	}, flag.Args())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	for _, s := range res.Sources {
		if !s.OK() {
			fmt.Println("failed:", s.Err)
			continue
		}
		fmt.Println(s.JSONPath, s.Counts)
	}
}
