package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epikoding/giftpool/internal/config"
	"github.com/epikoding/giftpool/internal/gift"
	"github.com/epikoding/giftpool/internal/store"
	"github.com/google/logger"
)

func main() {
	workers := flag.Int("workers", 10, "Number of parallel workers")
	repair := flag.Bool("repair", false, "Recompute completion and refunds for sessions with issues")
	outputFile := flag.String("output", "audit_results.json", "Output file for results")
	flag.Parse()

	defer logger.Init("giftpool-audit", true, false, io.Discard).Close()

	cfg := config.Load()
	policy, err := gift.ParsePolicy(cfg.CompletionPolicy)
	if err != nil {
		logger.Fatalf("Invalid COMPLETION_POLICY: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StorageBackend, err)
	}
	defer st.Close()

	service := gift.NewService(st, gift.Options{Policy: policy})
	ctx := context.Background()

	ids, err := service.SessionIDs(ctx)
	if err != nil {
		logger.Fatalf("Failed to list sessions: %v", err)
	}
	total := len(ids)

	fmt.Printf("Auditing %d sessions with %d workers (policy=%s)...\n", total, *workers, policy)

	idChan := make(chan string, *workers*10)
	issueChan := make(chan gift.Issue, 1000)

	var processed, issueCount, repaired int64
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				issues, err := service.Audit(ctx, id)
				if err != nil {
					logger.Warningf("Failed to audit session %s: %v", id, err)
					continue
				}
				for _, issue := range issues {
					issueChan <- issue
					atomic.AddInt64(&issueCount, 1)
				}
				if *repair && len(issues) > 0 {
					if _, err := service.Recompute(ctx, id); err != nil {
						logger.Warningf("Failed to repair session %s: %v", id, err)
					} else {
						atomic.AddInt64(&repaired, 1)
					}
				}
				p := atomic.AddInt64(&processed, 1)
				if p%1000 == 0 {
					fmt.Printf("Progress: %d/%d (%.1f%%), Issues found: %d\n",
						p, total, float64(p)/float64(total)*100, atomic.LoadInt64(&issueCount))
				}
			}
		}()
	}

	// Collect issues
	var issues []gift.Issue
	done := make(chan struct{})
	go func() {
		for issue := range issueChan {
			issues = append(issues, issue)
		}
		close(done)
	}()

	startTime := time.Now()
	for _, id := range ids {
		idChan <- id
	}

	close(idChan)
	wg.Wait()
	close(issueChan)
	<-done

	elapsed := time.Since(startTime)
	fmt.Printf("\n=== Audit Complete ===\n")
	fmt.Printf("Total sessions: %d\n", total)
	fmt.Printf("Issues found: %d\n", len(issues))
	if *repair {
		fmt.Printf("Sessions repaired: %d\n", repaired)
	}
	fmt.Printf("Time elapsed: %v\n", elapsed)

	// Group issues by type
	issuesByType := make(map[string][]gift.Issue)
	for _, issue := range issues {
		issuesByType[issue.Type] = append(issuesByType[issue.Type], issue)
	}

	fmt.Printf("\n=== Issues by Type ===\n")
	for typ, typeIssues := range issuesByType {
		fmt.Printf("%s: %d\n", typ, len(typeIssues))
	}

	output := map[string]interface{}{
		"summary": map[string]interface{}{
			"total":    total,
			"issues":   len(issues),
			"repaired": repaired,
			"policy":   policy,
			"elapsed":  elapsed.String(),
		},
		"issuesByType": issuesByType,
		"issues":       issues,
	}

	jsonData, _ := json.MarshalIndent(output, "", "  ")
	if err := os.WriteFile(*outputFile, jsonData, 0644); err != nil {
		logger.Errorf("Failed to write output file: %v", err)
	} else {
		fmt.Printf("\nResults saved to %s\n", *outputFile)
	}
}
