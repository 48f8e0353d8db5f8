package storkit

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingLayer logs every operation with its path, duration and outcome
// through a structured logger. Successful calls log at debug level,
// failures at warn with the normalized error kind attached.
//
// Typically installed outermost so one log line covers the whole layered
// call, retries included.
type LoggingLayer struct {
	// Logger is the logrus instance to write to. Nil selects the
	// logrus standard logger.
	Logger *logrus.Logger
}

// Apply implements Layer.
func (l LoggingLayer) Apply(inner Accessor) Accessor {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &loggingAccessor{
		passthrough: passthrough{inner: inner},
		log:         logger.WithField("component", "storkit"),
	}
}

type loggingAccessor struct {
	passthrough
	log *logrus.Entry
}

// observe logs the completed call.
func (a *loggingAccessor) observe(op Op, path string, start time.Time, err error) {
	fields := logrus.Fields{
		"op":       op,
		"path":     path,
		"duration": time.Since(start),
	}
	if err != nil {
		fields["kind"] = ErrorKind(err).String()
		a.log.WithFields(fields).WithError(err).Warn("operation failed")
		return
	}
	a.log.WithFields(fields).Debug("operation complete")
}

func (a *loggingAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Stat(ctx, path, opts)
	a.observe(OpStat, path, start, err)
	return meta, err
}

func (a *loggingAccessor) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := a.inner.Read(ctx, path, opts)
	a.observe(OpRead, path, start, err)
	return rc, err
}

func (a *loggingAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Write(ctx, path, r, opts)
	a.observe(OpWrite, path, start, err)
	return meta, err
}

func (a *loggingAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	start := time.Now()
	err := a.inner.Delete(ctx, path, opts)
	a.observe(OpDelete, path, start, err)
	return err
}

func (a *loggingAccessor) CreateDir(ctx context.Context, path string) error {
	start := time.Now()
	err := a.inner.CreateDir(ctx, path)
	a.observe(OpCreateDir, path, start, err)
	return err
}

func (a *loggingAccessor) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	start := time.Now()
	pager, err := a.inner.List(ctx, path, opts)
	a.observe(OpList, path, start, err)
	return pager, err
}

func (a *loggingAccessor) Rename(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.inner.Rename(ctx, from, to)
	a.observe(OpRename, from, start, err)
	return err
}

func (a *loggingAccessor) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.inner.Copy(ctx, from, to)
	a.observe(OpCopy, from, start, err)
	return err
}

var _ Accessor = (*loggingAccessor)(nil)
