// Benchmark tool for testing Harrier against labeled address data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/addresses.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled address data (address, blockchain, illicit label)
//   2. Scores each address through the Harrier API
//   3. Compares the score against the alert threshold and the actual label
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV needs an "address" column and an "illicit" column ("1" marks an
// illicit address); a "blockchain" column is optional.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledAddress is a row from the benchmark dataset.
type LabeledAddress struct {
	Address    string
	Blockchain string
	IsIllicit  bool
}

// ScoreRequest is the Harrier score endpoint request format.
type ScoreRequest struct {
	Address string `json:"address"`
}

// ScoreResponse carries the fields the benchmark reads from the risk profile.
type ScoreResponse struct {
	Address     string  `json:"address"`
	OverallRisk float64 `json:"overallRisk"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Illicit address scored at or above threshold
	FalsePositives int64 // Licit address scored at or above threshold
	TrueNegatives  int64 // Licit address scored below threshold
	FalseNegatives int64 // Illicit address scored below threshold (missed!)

	TotalProcessed int64
	TotalIllicit   int64
	TotalLicit     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled address CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	orgID := flag.String("org", "benchmark-test", "Organization ID for requests")
	threshold := flag.Float64("threshold", 70, "Score at or above which an address counts as flagged")
	limit := flag.Int("limit", 10000, "Maximum addresses to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	illicitOnly := flag.Bool("illicit-only", false, "Only test illicit addresses")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for licit addresses (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each address result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/addresses.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         HARRIER BENCHMARK - Address Risk Screening            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Harrier URL:  %s\n", *baseURL)
	fmt.Printf("Org ID:       %s\n", *orgID)
	fmt.Printf("Threshold:    %.1f\n", *threshold)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("Illicit Only: %v\n", *illicitOnly)
	fmt.Printf("Sample Rate:  %.2f\n", *sampleRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	fmt.Printf("\nReading labeled addresses from %s...\n", *csvPath)
	addresses, err := readLabeledCSV(*csvPath, *limit, *illicitOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d addresses\n", len(addresses))

	illicitCount := 0
	for _, a := range addresses {
		if a.IsIllicit {
			illicitCount++
		}
	}
	fmt.Printf("  - Illicit: %d (%.2f%%)\n", illicitCount, 100*float64(illicitCount)/float64(len(addresses)))
	fmt.Printf("  - Licit:   %d (%.2f%%)\n", len(addresses)-illicitCount, 100*float64(len(addresses)-illicitCount)/float64(len(addresses)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(addresses, *baseURL, *orgID, *threshold, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int, illicitOnly bool, sampleRate float64) ([]LabeledAddress, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	addrCol, ok := colIndex["address"]
	if !ok {
		return nil, fmt.Errorf("csv has no address column")
	}
	labelCol, ok := colIndex["illicit"]
	if !ok {
		return nil, fmt.Errorf("csv has no illicit column")
	}
	chainCol, hasChain := colIndex["blockchain"]

	var addresses []LabeledAddress
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isIllicit := record[labelCol] == "1"

		if illicitOnly && !isIllicit {
			continue
		}

		// Sample licit addresses
		if !isIllicit && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		a := LabeledAddress{
			Address:   record[addrCol],
			IsIllicit: isIllicit,
		}
		if hasChain {
			a.Blockchain = record[chainCol]
		}

		addresses = append(addresses, a)

		if limit > 0 && len(addresses) >= limit {
			break
		}
	}

	return addresses, nil
}

func runBenchmark(addresses []LabeledAddress, baseURL, orgID string, threshold float64, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledAddress, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for addr := range work {
				start := time.Now()
				result, err := scoreAddress(client, baseURL, orgID, addr)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", addr.Address, err)
					}
					continue
				}

				if addr.IsIllicit {
					atomic.AddInt64(&metrics.TotalIllicit, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLicit, 1)
				}

				predicted := result.OverallRisk >= threshold
				actual := addr.IsIllicit

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					name := addr.Address
					if len(name) > 16 {
						name = name[:16]
					}
					fmt.Printf("%s %-16s | Illicit: %-5v | Score: %6.2f\n",
						status, name, addr.IsIllicit, result.OverallRisk)
				}
			}
		}()
	}

	for _, addr := range addresses {
		work <- addr
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreAddress(client *http.Client, baseURL, orgID string, addr LabeledAddress) (*ScoreResponse, error) {
	body, err := json.Marshal(ScoreRequest{Address: addr.Address})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score/address", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Organization-ID", orgID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Illicit:    %d\n", m.TotalIllicit)
	fmt.Printf("   Total Licit:      %d\n", m.TotalLicit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                       Predicted")
	fmt.Println("                  FLAGGED     CLEAR")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  I  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged addresses, how many were illicit)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of illicit addresses, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalIllicit > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalIllicit) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalIllicit) * 100
		fmt.Printf("   Illicit Detected:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalIllicit, detectionRate)
		fmt.Printf("   Illicit Missed:    %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalIllicit, missRate)
	}
	if m.TotalLicit > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalLicit) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLicit, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		aps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f addr/sec\n", aps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most illicit activity")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some illicit addresses")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant illicit activity being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most illicit activity is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
