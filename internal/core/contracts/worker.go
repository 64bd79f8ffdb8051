package contracts

import "context"

type AsyncWorker interface {
	// Run blocks until ctx is cancelled.
	Run(ctx context.Context) error
	// Tick performs a single pass of the worker's job.
	Tick(ctx context.Context)
}
