package state

import (
	"errors"
	"time"

	"docaudit/annotate"
	"docaudit/ooxml"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
	}
}

// PrepareProcessing creates document processors from loaded configuration.
// Must be called after configuration and logging are set up.
func (e *LocalEnv) PrepareProcessing() error {
	if e.Cfg == nil || e.Log == nil {
		return errors.New("configuration and logging must be prepared first")
	}
	e.Ingestor = ooxml.NewIngestor(&e.Cfg.Ingest, e.Log.Named("ingest"))
	e.Annotator = annotate.New(&e.Cfg.Annotate, annotate.NewIDAllocator(e.Cfg.Annotate.FirstCommentID), e.Log.Named("annotate"))
	return nil
}
