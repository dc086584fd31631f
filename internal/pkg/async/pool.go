// internal/pkg/async/pool.go
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Results maps task names to their outcome.
type Results map[string]Result

// Pool runs tasks on a bounded number of goroutines. A Pool can be reused;
// every Execute call gets its own channels.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, tasks <-chan Task, results chan<- Result) {
	defer wg.Done()
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Name: task.Name, Err: err}
			continue
		}
		data, err := task.Execute(ctx)
		results <- Result{
			Name: task.Name,
			Data: data,
			Err:  err,
		}
	}
}

// Execute runs every task and waits for all of them. Cancelled tasks report
// the context error instead of running.
func (p *Pool) Execute(ctx context.Context, tasks []Task) Results {
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, taskCh, resultCh)
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	wg.Wait()
	close(resultCh)

	results := make(Results, len(tasks))
	for result := range resultCh {
		results[result.Name] = result
	}
	return results
}

// FirstError returns the error of the first failed task, in the order the
// names are given.
func (r Results) FirstError(names ...string) error {
	for _, name := range names {
		result, ok := r[name]
		if !ok {
			return fmt.Errorf("task %s did not run", name)
		}
		if result.Err != nil {
			return fmt.Errorf("task %s: %w", name, result.Err)
		}
	}
	return nil
}
