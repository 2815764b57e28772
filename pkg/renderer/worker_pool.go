package renderer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// SampleTask represents a contiguous range of angular samples for the worker pool
type SampleTask struct {
	TaskID int                 // For deterministic ordering
	First  int                 // First sample index
	Count  int                 // Number of samples in the range
	Params *DispatchParams     // Immutable per-dispatch input
	Buffer *AccumulationBuffer // Shared buffer to write lit samples to
}

// SampleResult contains the result from casting a sample range
type SampleResult struct {
	TaskID int
	Stats  RenderStats
	Error  error
}

// WorkerPool manages parallel sample casting
type WorkerPool struct {
	taskQueue   chan SampleTask
	resultQueue chan SampleResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
	started     atomic.Bool
}

// Worker handles individual sample range tasks
type Worker struct {
	ID          int
	caster      *RayCaster
	taskQueue   chan SampleTask
	resultQueue chan SampleResult
}

// NewWorkerPool creates a worker pool with the specified number of workers.
// maxTasks bounds the number of tasks submitted per dispatch.
func NewWorkerPool(caster *RayCaster, maxTasks, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if maxTasks < 1 {
		maxTasks = 1
	}

	wp := &WorkerPool{
		taskQueue:   make(chan SampleTask, maxTasks),   // Buffer for every task of one dispatch
		resultQueue: make(chan SampleResult, maxTasks), // Buffer for every result of one dispatch
		numWorkers:  numWorkers,
	}

	for i := 0; i < numWorkers; i++ {
		wp.workers = append(wp.workers, &Worker{
			ID:          i,
			caster:      caster,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
		})
	}

	return wp
}

// Start begins all workers. Calling it more than once has no effect.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.started.Store(true)
		for _, worker := range wp.workers {
			wp.wg.Add(1)
			go worker.run(&wp.wg)
		}
	})
}

// Stop gracefully shuts down all workers
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue) // No more tasks
		if wp.started.Load() {
			wp.wg.Wait() // Wait for workers to finish
		}
		close(wp.resultQueue)
	})
}

// SubmitTask submits a sample task to the worker pool
func (wp *WorkerPool) SubmitTask(task SampleTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed sample result
func (wp *WorkerPool) GetResult() (SampleResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// Started reports whether the workers were launched
func (wp *WorkerPool) Started() bool {
	return wp.started.Load()
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		w.resultQueue <- w.process(task)
	}
}

// process casts one range, reporting a panic as the task error
func (w *Worker) process(task SampleTask) (result SampleResult) {
	result.TaskID = task.TaskID
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("samples %d..%d: %v", task.First, task.First+task.Count-1, r)
		}
	}()

	// Ranges never overlap, but pixels may be shared; the buffer reconciles writers
	result.Stats = w.caster.castRange(task.Params, task.Buffer, task.First, task.Count)
	return result
}
