// Package parallel provides data-parallel training across model replicas.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/born-bench/internal/dataset"
	"github.com/born-ml/born-bench/internal/model"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers      int // Replicas computing gradients concurrently.
	MinChunkSize int // Minimum values per goroutine when averaging gradients.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		MinChunkSize: 4096,
	}
}

// For executes f(i) for i in [0, n), splitting the range across workers
// once it is at least MinChunkSize long.
func For(n int, f func(i int), cfg Config) {
	if cfg.Workers <= 1 || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.Workers-1)/cfg.Workers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Trainer fits a model by running one replica per batch concurrently,
// averaging their gradients and stepping the master once per group.
//
// Models that are not model.Replicable, or a single worker, fall back to
// the model's own Fit.
type Trainer struct {
	cfg Config
}

// NewTrainer returns a data-parallel trainer.
func NewTrainer(cfg Config) *Trainer {
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultConfig().MinChunkSize
	}
	return &Trainer{cfg: cfg}
}

// Fit trains m on it until exhausted. Each group of up to Workers batches
// yields one optimizer step on m.
func (t *Trainer) Fit(ctx context.Context, m model.TrainableModel, it dataset.Iterator) (model.FitStats, error) {
	master, ok := m.(model.Replicable)
	if !ok || t.cfg.Workers <= 1 {
		return m.Fit(ctx, it)
	}

	replicas := make([]model.Replicable, t.cfg.Workers)
	for i := range replicas {
		r, err := master.Replica()
		if err != nil {
			return model.FitStats{}, fmt.Errorf("replica %d: %w", i, err)
		}
		replicas[i] = r
	}

	var stats model.FitStats
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		group, err := nextGroup(it, len(replicas))
		if err != nil {
			return stats, err
		}
		if len(group) == 0 {
			break
		}

		grads := make([][][]float32, len(group))
		losses := make([]float32, len(group))
		g, gctx := errgroup.WithContext(ctx)
		for i, batch := range group {
			r := replicas[i]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				loss, grad, err := replicaStep(r, master, batch)
				if err != nil {
					return err
				}
				grads[i], losses[i] = grad, loss
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		if err := master.ApplyGradients(t.average(grads)); err != nil {
			return stats, err
		}
		stats.Batches += len(group)
		stats.Steps++
		stats.Score = mean(losses)
	}
	return stats, nil
}

func nextGroup(it dataset.Iterator, n int) ([]dataset.Batch, error) {
	group := make([]dataset.Batch, 0, n)
	for len(group) < n && it.HasNext() {
		b, err := it.Next()
		if errors.Is(err, dataset.ErrExhausted) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next batch: %w", err)
		}
		group = append(group, b)
	}
	return group, nil
}

// replicaStep syncs r with master and computes the gradients of one batch.
func replicaStep(r, master model.Replicable, b dataset.Batch) (float32, [][]float32, error) {
	if err := r.SyncFrom(master); err != nil {
		return 0, nil, err
	}
	if err := r.SetInput(b.Features); err != nil {
		return 0, nil, err
	}
	if err := r.SetLabels(b.Labels); err != nil {
		return 0, nil, err
	}
	act, err := r.Forward()
	if err != nil {
		return 0, nil, err
	}
	if err := r.ComputeGradients(); err != nil {
		return 0, nil, err
	}
	grads, err := r.Gradients()
	if err != nil {
		return 0, nil, err
	}
	return act.Loss, grads, nil
}

// average returns the element-wise mean of per-replica gradients.
func (t *Trainer) average(grads [][][]float32) [][]float32 {
	out := make([][]float32, len(grads[0]))
	scale := 1 / float32(len(grads))
	for p := range out {
		dst := make([]float32, len(grads[0][p]))
		For(len(dst), func(k int) {
			var sum float32
			for _, g := range grads {
				sum += g[p][k]
			}
			dst[k] = sum * scale
		}, t.cfg)
		out[p] = dst
	}
	return out
}

func mean(xs []float32) float32 {
	var sum float32
	for _, x := range xs {
		sum += x
	}
	return sum / float32(len(xs))
}
