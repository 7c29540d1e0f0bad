// Command ingest-stories bulk-submits stories from a CSV file via the API.
// Expected columns: author_name, challenge, experience, solution, advice,
// symptom_tags (semicolon separated), narrative.
//
// Usage:
//
//	go run ./scripts/ingest-stories -file stories.csv -api-url http://localhost:8080 -api-key YOUR_API_KEY
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type config struct {
	filePath   string
	apiBaseURL string
	apiKey     string
	delayMS    int
	dryRun     bool
}

type storyRequest struct {
	AuthorName  string   `json:"author_name,omitempty"`
	Challenge   string   `json:"challenge"`
	Experience  string   `json:"experience"`
	Solution    string   `json:"solution"`
	Advice      string   `json:"advice,omitempty"`
	SymptomTags []string `json:"symptom_tags,omitempty"`
	Narrative   string   `json:"narrative,omitempty"`
}

type stats struct {
	totalRows  int
	skipped    int
	successful int
	failed     int
}

func main() {
	cfg := parseFlags()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.filePath, "file", "", "path to the stories CSV file (required)")
	flag.StringVar(&cfg.apiBaseURL, "api-url", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.apiKey, "api-key", "", "API key (required unless -dry-run)")
	flag.IntVar(&cfg.delayMS, "delay-ms", 100, "delay between requests in milliseconds")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "parse and validate only, do not POST")
	flag.Parse()

	return cfg
}

func run(cfg config) error {
	if cfg.filePath == "" {
		return errors.New("-file is required")
	}

	if cfg.apiKey == "" && !cfg.dryRun {
		return errors.New("-api-key is required unless -dry-run is set")
	}

	f, err := os.Open(cfg.filePath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}

	for _, required := range []string{"challenge", "experience", "solution"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("missing required column %q", required)
		}
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var st stats

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}

		st.totalRows++

		req := rowToRequest(row, cols)
		if strings.TrimSpace(req.Challenge) == "" ||
			strings.TrimSpace(req.Experience) == "" ||
			strings.TrimSpace(req.Solution) == "" {
			st.skipped++

			continue
		}

		if cfg.dryRun {
			st.successful++

			continue
		}

		if err := postStory(client, cfg, req); err != nil {
			st.failed++
			fmt.Fprintf(os.Stderr, "row %d: %v\n", st.totalRows, err)
		} else {
			st.successful++
		}

		time.Sleep(time.Duration(cfg.delayMS) * time.Millisecond)
	}

	fmt.Printf("rows=%d submitted=%d skipped=%d failed=%d\n",
		st.totalRows, st.successful, st.skipped, st.failed)

	if st.failed > 0 {
		return fmt.Errorf("%d rows failed", st.failed)
	}

	return nil
}

func rowToRequest(row []string, cols map[string]int) storyRequest {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[i])
	}

	var tags []string

	for _, tag := range strings.Split(get("symptom_tags"), ";") {
		if t := strings.TrimSpace(tag); t != "" {
			tags = append(tags, t)
		}
	}

	return storyRequest{
		AuthorName:  get("author_name"),
		Challenge:   get("challenge"),
		Experience:  get("experience"),
		Solution:    get("solution"),
		Advice:      get("advice"),
		SymptomTags: tags,
		Narrative:   get("narrative"),
	}
}

func postStory(client *http.Client, cfg config, story storyRequest) error {
	body, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, cfg.apiBaseURL+"/v1/stories", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}
