// Package loadtest provides load testing utilities for the token store.
//
// This package simulates concurrent dashboard and build-tool access
// patterns to validate that the store can serve many simultaneous
// snapshot readers while sync applies land, without data corruption.
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/tokensmith/toksync/internal/store"
	"github.com/tokensmith/toksync/internal/token"
)

// TestStore is a populated store used for load testing.
type TestStore struct {
	DB          *store.DB
	ProjectID   string
	TokenIDs    []string
	LinkedIDs   []string
	TotalTokens int
	LinkedPct   float64
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateTestStore creates a store populated with numTokens tokens.
//
// Tokens are spread over realistic categories (color, spacing,
// typography, ...) with value shapes matching their type. The linkedPct
// parameter controls what fraction carries an external reference to a
// remote variable (typical: 0.7 for 70%).
func CreateTestStore(dbPath, projectID string, numTokens int, linkedPct float64) (*TestStore, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Raise pool limits so reader goroutines do not serialize on the pool
	db.RawDB().SetMaxOpenConns(150)
	db.RawDB().SetMaxIdleConns(50)
	db.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ts := &TestStore{
		DB:          db,
		ProjectID:   projectID,
		TokenIDs:    make([]string, 0, numTokens),
		LinkedIDs:   make([]string, 0),
		TotalTokens: numTokens,
		LinkedPct:   linkedPct,
	}

	ctx := context.Background()
	for _, tok := range generateTokens(projectID, numTokens, linkedPct) {
		if err := db.UpsertToken(ctx, tok, token.OriginAutomation, "loadtest"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to insert token %s: %w", tok.ID, err)
		}
		ts.TokenIDs = append(ts.TokenIDs, tok.ID)
		if tok.ExternalRef != "" {
			ts.LinkedIDs = append(ts.LinkedIDs, tok.ID)
		}
	}

	return ts, nil
}

// Close closes the test store connection.
func (ts *TestStore) Close() error {
	if ts.DB != nil {
		return ts.DB.Close()
	}
	return nil
}

// RunConcurrentSnapshots simulates N concurrent readers taking full
// project snapshots, the query every diff run and export issues.
//
// Each reader performs queriesPerReader snapshots, recording latency for
// each. Returns aggregated latency statistics.
func (ts *TestStore) RunConcurrentSnapshots(numReaders, queriesPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	var errorCount int

	resultsChan := make(chan []time.Duration, numReaders)
	errorsChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerReader)
			ctx := context.Background()

			for j := 0; j < queriesPerReader; j++ {
				start := time.Now()
				_, err := ts.DB.ReadSnapshot(ctx, ts.ProjectID)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", readerID, j, err)
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			errorCount++
			fmt.Printf("Error: %v\n", err)
		}
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// VerifyReadersUnderWrites runs concurrent snapshot readers while a
// writer keeps editing token values, and verifies every snapshot is
// internally consistent.
func (ts *TestStore) VerifyReadersUnderWrites(numReaders int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+1)

	// Writer: keep bumping values of random tokens.
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(7))
		for n := 0; ; n++ {
			select {
			case <-ctx.Done():
				return
			default:
				id := ts.TokenIDs[rng.Intn(len(ts.TokenIDs))]
				tok, err := ts.DB.GetToken(ctx, id)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("writer read failed: %w", err)
					}
					return
				}
				tok.Value = fmt.Sprintf("#%06xff", n%0xffffff)
				tok.Type = token.TypeColor
				if err := ts.DB.UpsertToken(ctx, tok, token.OriginAutomation, "loadtest"); err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("writer update failed: %w", err)
					}
					return
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				default:
					tokens, err := ts.DB.ReadSnapshot(ctx, ts.ProjectID)
					if err != nil && ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d failed: %w", readerID, err)
						return
					}

					// Verify data consistency
					for _, tok := range tokens {
						if tok.ID == "" || tok.Name == "" {
							errorsChan <- fmt.Errorf("reader %d found malformed token: %+v", readerID, tok)
							return
						}
						if tok.Version < 1 {
							errorsChan <- fmt.Errorf("reader %d found token %s with version %d", readerID, tok.ID, tok.Version)
							return
						}
					}

					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// GetStats returns statistics about the test store.
func (ts *TestStore) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_tokens":   ts.TotalTokens,
		"linked_tokens":  len(ts.LinkedIDs),
		"linked_percent": float64(len(ts.LinkedIDs)) / float64(ts.TotalTokens) * 100,
	}
}

// generateTokens creates test tokens with a realistic category spread.
func generateTokens(projectID string, count int, linkedPct float64) []*token.Token {
	type categoryShape struct {
		category string
		typ      token.Type
		value    func(i int) string
	}
	shapes := []categoryShape{
		{"color", token.TypeColor, func(i int) string { return fmt.Sprintf("#%06xff", (i*2654435761)%0xffffff) }},
		{"spacing", token.TypeSpacing, func(i int) string { return fmt.Sprintf("%d", 4*(i%12+1)) }},
		{"typography", token.TypeFontSize, func(i int) string { return fmt.Sprintf("%d", 12+i%10) }},
		{"radius", token.TypeBorderRadius, func(i int) string { return fmt.Sprintf("%d", i%16) }},
		{"opacity", token.TypeOpacity, func(i int) string { return fmt.Sprintf("0.%02d", i%100) }},
	}

	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().Add(-30 * 24 * time.Hour)

	tokens := make([]*token.Token, count)
	for i := 0; i < count; i++ {
		shape := shapes[i%len(shapes)]
		createdAt := baseTime.Add(time.Duration(i) * time.Minute)

		tok := &token.Token{
			ID:        fmt.Sprintf("tk-%012d", i),
			ProjectID: projectID,
			Name:      fmt.Sprintf("%s/test-%05d", shape.category, i),
			Value:     shape.value(i),
			Type:      shape.typ,
			Category:  shape.category,
			Version:   1,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if rng.Float64() < linkedPct {
			tok.ExternalRef = fmt.Sprintf("VariableID:%d:%d", i/100, i%100)
			tok.RemoteValue = tok.Value
		}
		tokens[i] = tok
	}

	return tokens
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	mean := sum / time.Duration(len(durations))

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats() {
	fmt.Printf("Latency Statistics:\n")
	fmt.Printf("  Total Queries: %d\n", s.TotalQueries)
	fmt.Printf("  Errors:        %d\n", s.Errors)
	fmt.Printf("  Min:           %v\n", s.Min)
	fmt.Printf("  P50 (Median):  %v\n", s.P50)
	fmt.Printf("  Mean:          %v\n", s.Mean)
	fmt.Printf("  P95:           %v\n", s.P95)
	fmt.Printf("  P99:           %v\n", s.P99)
	fmt.Printf("  Max:           %v\n", s.Max)
}
