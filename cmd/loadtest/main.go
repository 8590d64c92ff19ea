// Command loadtest нагружает HTTP API бронирований сценариями create/update/delete
// и печатает сводку по латентности.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

type loadMode string

const (
	modeCreate             loadMode = "create"
	modeCreateDelete       loadMode = "create-delete"
	modeCreateUpdateDelete loadMode = "create-update-delete"
)

const (
	opScenario = "scenario"
	opCreate   = "create"
	opUpdate   = "update"
	opDelete   = "delete"

	// statusTransport: код в отчёте для запросов, не получивших HTTP-ответа.
	statusTransport = "transport_error"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	guestTag    string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type opReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time           `json:"started_at"`
	DurationSeconds   float64             `json:"duration_seconds"`
	TotalScenarios    int64               `json:"total_scenarios"`
	SuccessScenarios  int64               `json:"success_scenarios"`
	FailedScenarios   int64               `json:"failed_scenarios"`
	ErrorRate         float64             `json:"error_rate"`
	RPS               float64             `json:"rps"`
	ScenarioLatencyMs latencySummary      `json:"scenario_latency_ms"`
	Operations        map[string]opReport `json:"operations"`
}

type opStats struct {
	calls     int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu  sync.Mutex
	ops map[string]*opStats
}

func newCollector() *collector {
	return &collector{ops: make(map[string]*opStats)}
}

// record учитывает вызов операции; status содержит HTTP-код или statusTransport.
func (c *collector) record(op string, latency time.Duration, status string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.ops[op]
	if !found {
		stats = &opStats{statuses: make(map[string]int64)}
		c.ops[op] = stats
	}
	stats.calls++
	if !ok {
		stats.failed++
	}
	stats.statuses[status]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Operations:      make(map[string]opReport, len(c.ops)),
	}

	for name, stats := range c.ops {
		statuses := make(map[string]int64, len(stats.statuses))
		for status, count := range stats.statuses {
			statuses[status] = count
		}
		result.Operations[name] = opReport{
			Calls:     stats.calls,
			Success:   stats.calls - stats.failed,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statuses,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	if scenario, ok := result.Operations[opScenario]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
		delete(result.Operations, opScenario)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	var modeValue string

	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the reservation API")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-delete | create-update-delete")
	fs.StringVar(&cfg.guestTag, "guest-tag", "load", "guest name prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	var errs []error
	if cfg.baseURL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if cfg.duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0 when duration is not set"))
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0 when explicitly set with duration"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if strings.TrimSpace(cfg.guestTag) == "" {
		errs = append(errs, errors.New("guest-tag is required"))
	}
	return cfg, errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateDelete, modeCreateUpdateDelete:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	fs := flag.NewFlagSet("loadtest", flag.ExitOnError)
	cfg, err := parseConfig(fs, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency,
			MaxIdleConnsPerHost: cfg.concurrency,
		},
	}

	result := run(context.Background(), client, cfg)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run раздаёт сценарии воркерам и собирает отчёт.
func run(ctx context.Context, client *http.Client, cfg config) report {
	startedAt := time.Now()
	runID := strconv.FormatInt(startedAt.UnixNano(), 36)
	col := newCollector()
	lt := &loadClient{http: client, baseURL: cfg.baseURL, col: col}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				lt.runScenario(ctx, cfg, index, runID)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type loadClient struct {
	http    *http.Client
	baseURL string
	col     *collector
}

func (c *loadClient) runScenario(ctx context.Context, cfg config, index int, runID string) {
	start := time.Now()
	err := c.scenario(ctx, cfg, index, runID)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	c.col.record(opScenario, time.Since(start), status, err == nil)
}

func (c *loadClient) scenario(ctx context.Context, cfg config, index int, runID string) error {
	form := domain.ReservationForm{
		CheckInDate:  "2024-05-01",
		CheckOutDate: "2024-05-03",
		GuestName:    fmt.Sprintf("%s-%s-%d", cfg.guestTag, runID, index),
		GuestEmail:   fmt.Sprintf("%s.%d@example.com", cfg.guestTag, index),
		RoomNumber:   strconv.Itoa(100 + index%300),
	}

	var created domain.Reservation
	if err := c.call(ctx, opCreate, http.MethodPost, "/reservations", form, http.StatusCreated, &created); err != nil {
		return err
	}
	if created.ID == "" {
		return errors.New("create response returned empty reservation id")
	}

	switch cfg.mode {
	case modeCreate:
		return nil
	case modeCreateUpdateDelete:
		form.RoomNumber = strconv.Itoa(400 + index%300)
		if err := c.call(ctx, opUpdate, http.MethodPut, "/reservations/"+created.ID, form, http.StatusOK, nil); err != nil {
			return err
		}
	}
	return c.call(ctx, opDelete, http.MethodDelete, "/reservations/"+created.ID, nil, http.StatusOK, nil)
}

// call выполняет запрос, учитывает его в collector и декодирует ответ в out.
func (c *loadClient) call(ctx context.Context, op, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(op, time.Since(start), statusTransport, false)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == want
	if ok && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			ok = false
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	c.col.record(op, time.Since(start), strconv.Itoa(resp.StatusCode), ok)
	if !ok {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}

	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	l := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	names := make([]string, 0, len(result.Operations))
	for name := range result.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Operations[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile: линейная интерполяция по отсортированной выборке.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower, upper := int(math.Floor(rank)), int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
