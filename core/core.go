package core

import "context"

// IndexerWorker is a long-running worker owned by a module. Run blocks until
// the worker stops or the context is canceled.
type IndexerWorker interface {
	Run(ctx context.Context) error
}
