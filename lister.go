package storkit

import (
	"context"

	"github.com/gobwas/glob"
)

// Lister is a lazy, single-consumer cursor over a listing. It pulls pages
// from the backend transparently as the caller drains it; pagination
// tokens never surface.
//
// Next returns nil at the end of the sequence, never an error, and keeps
// returning nil on further calls. A backend failure mid-listing surfaces
// once from Next and closes the lister; entries already yielded remain
// valid. Listers must be closed (or fully drained) to release backend
// resources, and must not be shared between goroutines.
type Lister struct {
	pager   Pager
	pattern glob.Glob

	buf    []Entry
	closed bool

	// seen guards against duplicate entries across page boundaries,
	// which eventually consistent backends occasionally produce.
	seen map[string]struct{}
}

func newLister(opts ListOptions) (*Lister, error) {
	l := &Lister{seen: make(map[string]struct{})}
	if opts.Pattern != "" {
		g, err := glob.Compile(opts.Pattern, '/')
		if err != nil {
			return nil, WrapError(KindInvalidInput, OpList, opts.Pattern, err)
		}
		l.pattern = g
	}
	return l, nil
}

// Next returns the next entry, or nil when the listing is exhausted.
func (l *Lister) Next(ctx context.Context) (*Entry, error) {
	for {
		if l.closed {
			return nil, nil
		}
		for len(l.buf) > 0 {
			entry := l.buf[0]
			l.buf = l.buf[1:]
			if !l.admit(entry) {
				continue
			}
			return &entry, nil
		}

		page, err := l.pager.NextPage(ctx)
		if err != nil {
			// A failed listing cannot be resumed: the pagination
			// token may be invalid. Close and surface the error
			// exactly once.
			l.Close()
			return nil, err
		}
		if len(page) == 0 {
			l.Close()
			return nil, nil
		}
		l.buf = page
	}
}

// admit applies client-side filtering and de-duplication.
func (l *Lister) admit(entry Entry) bool {
	if _, dup := l.seen[entry.Path]; dup {
		return false
	}
	l.seen[entry.Path] = struct{}{}
	if l.pattern != nil && !l.pattern.Match(entry.Path) {
		return false
	}
	return true
}

// Close releases the backend pagination resources. Idempotent; draining
// the lister to exhaustion closes it implicitly.
func (l *Lister) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.buf = nil
	if l.pager != nil {
		return l.pager.Close()
	}
	return nil
}
