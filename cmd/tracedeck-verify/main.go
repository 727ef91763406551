// Package main implements tracedeck-verify, an operator tool that exercises
// the dataset client against a live exploration server: it runs both loads,
// reports readiness and integrity, and draws random samples.
//
// Network failures and checksum mismatches exit non-zero with distinct
// messages, so the tool doubles as a post-deploy integrity check.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tracedeck/tracedeck/internal/dataset"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "tracedeck-verify: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	apiBase := flag.String("api", "http://localhost:7480/api", "Base URL of the exploration server API")
	samples := flag.Int("samples", 3, "Number of random instance ids to draw")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	skew := flag.String("skew", "warn", "Policy for heuristics not in the manifest (warn, drop, fail)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	var policy dataset.SkewPolicy
	switch *skew {
	case "warn":
		policy = dataset.SkewWarn
	case "drop":
		policy = dataset.SkewDrop
	case "fail":
		policy = dataset.SkewFail
	default:
		return fmt.Errorf("unknown skew policy: %q", *skew)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := dataset.New(*apiBase, dataset.WithSkewPolicy(policy))
	events := c.Subscribe()
	c.Start(ctx)

	// Both axes report exactly one terminal event per load attempt.
	for range 2 {
		select {
		case <-events:
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for loads: %w", ctx.Err())
		}
	}

	if err := c.ManifestErr(); err != nil {
		var ierr *dataset.IntegrityError
		if errors.As(err, &ierr) {
			return fmt.Errorf("dataset integrity check FAILED: %w", ierr)
		}
		return fmt.Errorf("manifest unreachable: %w", err)
	}

	ids := c.InstanceIDs()
	fmt.Printf("index:      loaded (%d instances)\n", len(ids))
	fmt.Printf("checksum:   %s\n", c.Checksum())
	fmt.Printf("export url: %s\n", c.ExportURL())

	if err := c.HeuristicsErr(); err != nil {
		fmt.Printf("heuristics: FAILED (%v)\n", err)
	} else {
		scored := 0
		for _, id := range ids {
			if _, ok := c.Heuristics(id); ok {
				scored++
			}
		}
		fmt.Printf("heuristics: loaded (%d/%d instances scored)\n", scored, len(ids))
	}

	for i := 0; i < *samples; i++ {
		id, ok := c.SampleRandom()
		if !ok {
			fmt.Println("sample:     dataset is empty")
			break
		}
		fmt.Printf("sample:     /instances/%s\n", id)
	}

	if c.HeuristicsErr() != nil {
		return errors.New("heuristics load failed")
	}
	return nil
}
