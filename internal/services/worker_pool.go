package services

import (
	"context"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// OptimalWorkers sizes a bounded pool from the host: one worker per
// logical CPU, halved under memory pressure, clamped to [2, max] and never
// more than the number of jobs.
func OptimalWorkers(max, jobs int) int {
	workers, err := cpu.Counts(true)
	if err != nil || workers <= 0 {
		workers = runtime.NumCPU()
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.UsedPercent > 85 {
		workers /= 2
	}
	if workers < 2 {
		workers = 2
	}
	if max > 0 && workers > max {
		workers = max
	}
	if jobs > 0 && workers > jobs {
		workers = jobs
	}
	return workers
}

// runJobs executes jobs on a bounded pool and returns the concatenated
// results in job-submission order, so detector output is deterministic
// regardless of scheduling.
func runJobs[T any](ctx context.Context, workers int, jobs []func(ctx context.Context) []T) []T {
	if len(jobs) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]T, len(jobs))
	indices := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = jobs[i](ctx)
			}
		}()
	}

	for i := range jobs {
		select {
		case indices <- i:
		case <-ctx.Done():
			close(indices)
			wg.Wait()
			return flatten(results)
		}
	}
	close(indices)
	wg.Wait()
	return flatten(results)
}

func flatten[T any](batches [][]T) []T {
	var out []T
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out
}
