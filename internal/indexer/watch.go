package indexer

import (
	"context"

	"go.uber.org/zap"
)

// FileChanged ingests a file reported by the watcher. Errors are logged since
// there is no caller to return them to.
func (idx *Indexer) FileChanged(ctx context.Context, path string) {
	res, err := idx.IngestFile(ctx, path, nil)
	if err != nil {
		idx.logger.Warn("ingest watched file failed", zap.String("path", path), zap.Error(err))
		return
	}
	if res == nil {
		return
	}
	idx.logger.Info("ingested watched file",
		zap.String("path", path),
		zap.Int("chunks", res.ChunkCount),
		zap.String("backend", string(res.BackendUsed)))
}

// FileRemoved forgets a deleted file. Its chunks stay in the index.
func (idx *Indexer) FileRemoved(_ context.Context, path string) {
	idx.Forget(path)
	idx.logger.Debug("watched file removed", zap.String("path", path))
}
