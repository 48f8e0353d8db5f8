package storkit

import (
	"context"
)

// EmulationLayer fills in Copy and Rename on backends that lack them
// natively. Copy becomes read-then-write, Rename becomes copy-then-delete,
// and the capability flags are turned on so gated dispatch admits the
// calls.
//
// The emulated operations are not atomic: a crash mid-rename can leave
// both objects in place, and a concurrent writer can race the copy.
// Backends with native support keep it; the layer only intervenes where
// the flag is off.
type EmulationLayer struct{}

// Apply implements Layer.
func (EmulationLayer) Apply(inner Accessor) Accessor {
	return &emulateAccessor{passthrough: passthrough{inner: inner}}
}

type emulateAccessor struct {
	passthrough
}

// Info reports Copy and Rename as supported when Read and Write are,
// since that is all the emulation needs.
func (a *emulateAccessor) Info() Capability {
	cap := a.inner.Info()
	if cap.Read && cap.Write {
		cap.Copy = true
		if cap.Delete {
			cap.Rename = true
		}
	}
	return cap
}

func (a *emulateAccessor) Copy(ctx context.Context, from, to string) error {
	if a.inner.Info().Copy {
		return a.inner.Copy(ctx, from, to)
	}
	return a.copyByRewrite(ctx, from, to)
}

func (a *emulateAccessor) Rename(ctx context.Context, from, to string) error {
	inner := a.inner.Info()
	if inner.Rename {
		return a.inner.Rename(ctx, from, to)
	}
	if inner.Copy {
		if err := a.inner.Copy(ctx, from, to); err != nil {
			return err
		}
	} else {
		if err := a.copyByRewrite(ctx, from, to); err != nil {
			return err
		}
	}
	return a.inner.Delete(ctx, from, DeleteOptions{})
}

// copyByRewrite streams the source into the destination, carrying the
// source content type along.
func (a *emulateAccessor) copyByRewrite(ctx context.Context, from, to string) error {
	meta, err := a.inner.Stat(ctx, from, StatOptions{})
	if err != nil {
		return err
	}
	if meta.Mode.IsDir() {
		return NewError(KindIsADirectory, OpCopy, from, "cannot copy a directory")
	}

	src, err := a.inner.Read(ctx, from, ReadOptions{})
	if err != nil {
		return err
	}
	defer src.Close()

	opts := WriteOptions{Overwrite: true, ContentType: meta.ContentType}
	if _, err := a.inner.Write(ctx, to, src, opts); err != nil {
		return err
	}
	return nil
}

var _ Accessor = (*emulateAccessor)(nil)
