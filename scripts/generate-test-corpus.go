//go:build ignore

// Package main generates a synthetic chunk corpus for load and search
// benchmarking.
// Usage: go run scripts/generate-test-corpus.go -docs 50 -chunks 200 -output testdata/bench.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numDocs   = flag.Int("docs", 50, "Number of documents to generate")
	numChunks = flag.Int("chunks", 200, "Chunks per document")
	output    = flag.String("output", "testdata/bench.jsonl", "Output JSONL path")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Vocabulary for synthetic technical-manual prose.
var (
	subjects = []string{
		"the intake valve", "the coolant pump", "the hydraulic actuator",
		"the control panel", "the pressure relief circuit", "the drive belt",
		"the filter housing", "the main bearing", "the fuel injector",
		"the exhaust manifold", "the torque converter", "the seal kit",
	}
	actions = []string{
		"must be inspected", "requires calibration", "should be replaced",
		"is torqued to specification", "needs lubrication",
		"must be bled of air", "is monitored by the controller",
		"should be cleaned with solvent", "must not exceed rated pressure",
	}
	intervals = []string{
		"every 250 operating hours", "at each scheduled service",
		"once per season", "after any fault condition",
		"before the first start", "every 500 operating hours",
		"whenever the warning lamp illuminates",
	}
	docTitles = []string{
		"service-manual", "installation-guide", "parts-catalog",
		"troubleshooting-guide", "operator-handbook", "safety-datasheet",
	}
)

type record struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
	Page         int    `json:"page"`
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()
	enc := json.NewEncoder(w)

	const chunkSpan = 1000
	total := 0
	for d := 0; d < *numDocs; d++ {
		name := fmt.Sprintf("%s-%03d.pdf", docTitles[d%len(docTitles)], d)
		for c := 0; c < *numChunks; c++ {
			text := paragraph(rng, 3+rng.Intn(4))
			rec := record{
				DocumentName: name,
				Text:         text,
				Page:         c/4 + 1, // roughly four chunks per page
				StartChar:    c * chunkSpan,
				EndChar:      c*chunkSpan + len(text),
			}
			if err := enc.Encode(rec); err != nil {
				fmt.Fprintf(os.Stderr, "encode: %v\n", err)
				os.Exit(1)
			}
			total++
		}
	}

	fmt.Printf("Wrote %d chunks across %d documents to %s\n", total, *numDocs, *output)
}

func paragraph(rng *rand.Rand, sentences int) string {
	out := ""
	for i := 0; i < sentences; i++ {
		if i > 0 {
			out += " "
		}
		out += sentence(rng)
	}
	return out
}

func sentence(rng *rand.Rand) string {
	s := subjects[rng.Intn(len(subjects))]
	a := actions[rng.Intn(len(actions))]
	iv := intervals[rng.Intn(len(intervals))]
	text := fmt.Sprintf("%s %s %s.", s, a, iv)
	// Capitalize the leading article.
	return "T" + text[1:]
}
