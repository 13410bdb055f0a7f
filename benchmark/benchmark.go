package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/logging"
)

// Runner benchmarks one model by identifier, normally a *classifier.Service.
type Runner interface {
	Benchmark(ctx context.Context, id string, img image.Image, iterations int) (float64, error)
}

// TestImage is one image of the benchmark corpus.
type TestImage struct {
	Name  string
	Image image.Image
}

// Suite runs every model against every test image.
type Suite struct {
	runner     Runner
	outputDir  string
	iterations int
	log        *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	models  []string
	corpus  []TestImage
	results []Report
}

// NewSuite creates a benchmark suite.
//
// Arguments:
//   - runner: The benchmark runner.
//   - outputDir: Where SaveResults writes its files.
//   - iterations: Calls per model and image; non-positive uses the runner default.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(runner Runner, outputDir string, iterations int) *Suite {
	return &Suite{
		runner:     runner,
		outputDir:  outputDir,
		iterations: iterations,
		log:        logging.Module("benchmark"),
		now:        time.Now,
	}
}

// AddModels appends model identifiers to benchmark.
func (s *Suite) AddModels(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append(s.models, ids...)
}

// AddImage appends an already decoded image.
func (s *Suite) AddImage(name string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpus = append(s.corpus, TestImage{Name: name, Image: img})
}

// LoadTestImages loads one image file or every supported image in a directory.
func (s *Suite) LoadTestImages(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat image path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = images.Files(path); err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no valid images found in directory: %s", path)
		}
	}

	for _, f := range files {
		img, err := images.Load(f)
		if err != nil {
			if info.IsDir() {
				s.log.Warn("skipping unreadable image", "path", f, "error", err)
				continue
			}
			return err
		}
		s.AddImage(filepath.Base(f), img)
	}
	return nil
}

// Run benchmarks every model against every image.
//
// A failing pair is recorded with its error and the run continues.
func (s *Suite) Run(ctx context.Context) ([]Report, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.models...)
	corpus := append([]TestImage(nil), s.corpus...)
	s.mu.RUnlock()

	if len(ids) == 0 || len(corpus) == 0 {
		return nil, fmt.Errorf("benchmark needs at least one model and one image, have %d and %d", len(ids), len(corpus))
	}

	reports := make([]Report, 0, len(ids)*len(corpus))
	for _, id := range ids {
		for _, img := range corpus {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			r := s.runPair(ctx, id, img)
			reports = append(reports, r)
			if r.Error != "" {
				s.log.Warn("benchmark failed", "model", id, "image", img.Name, "error", r.Error)
				continue
			}
			s.log.Info("benchmark completed", "model", id, "image", img.Name, "average_ms", r.AverageMillis)
		}
	}

	s.mu.Lock()
	s.results = append(s.results, reports...)
	s.mu.Unlock()
	return reports, nil
}

func (s *Suite) runPair(ctx context.Context, id string, img TestImage) Report {
	b := img.Image.Bounds()
	r := Report{
		Model:      id,
		Image:      img.Name,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Iterations: s.iterations,
		Timestamp:  s.now(),
	}

	var startMem, endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	start := time.Now()
	avg, err := s.runner.Benchmark(ctx, id, img.Image, s.iterations)
	r.TotalDuration = time.Since(start)

	runtime.ReadMemStats(&endMem)
	r.MemoryStats = memoryDelta(startMem, endMem)

	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.AverageMillis = avg
	if avg > 0 {
		r.FramesPerSecond = 1000 / avg
	}
	return r
}

// Results returns every report produced so far.
func (s *Suite) Results() []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Report(nil), s.results...)
}

// SaveResults writes the results as JSON and a CSV summary.
//
// Returns:
//   - string: The JSON results path.
//   - error: An error if the directory or either file cannot be written.
func (s *Suite) SaveResults() (string, error) {
	results := s.Results()
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := s.now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}

	summaryFile := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := writeSummaryCSV(summaryFile, results); err != nil {
		return "", fmt.Errorf("failed to save summary CSV: %w", err)
	}
	s.log.Info("results saved", "json", resultsFile, "csv", summaryFile)
	return resultsFile, nil
}

func writeSummaryCSV(path string, results []Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"model", "image", "resolution", "iterations", "average_ms", "fps", "alloc_mb", "error"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{
			r.Model,
			r.Image,
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			strconv.Itoa(r.Iterations),
			strconv.FormatFloat(r.AverageMillis, 'f', 3, 64),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.MemoryStats.AllocBytes)/(1024*1024), 'f', 2, 64),
			r.Error,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
