package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joe-ervin05/litetable/config"
	"github.com/joe-ervin05/litetable/database"
)

// StreamOptions configures Query.Stream.
type StreamOptions struct {
	// Prefetch is the number of rows buffered ahead of the consumer.
	// Zero uses config.Cfg.StreamPrefetch.
	Prefetch int
	// KeepStatement leaves the prepared statement open when the stream ends.
	// The caller then owns it and must Finalize it.
	KeepStatement bool
}

// RowStream delivers the rows of a SELECT one at a time. A producer
// goroutine fills a bounded buffer and blocks while it is full.
//
//	s, err := q.Stream(ctx, query.StreamOptions{})
//	defer s.Close()
//	for s.Next() {
//		row := s.Row()
//	}
//	err = s.Err()
type RowStream struct {
	rows   chan database.Row
	done   chan struct{}
	cancel context.CancelFunc
	stmt   *database.Stmt
	keep   bool

	cur       database.Row
	err       error
	closed    bool
	stopped   atomic.Bool // set by Close before it cancels the producer
	closeOnce sync.Once
}

// Stream prepares the SELECT and starts fetching rows in the background.
// The stream holds the connection until it is exhausted or closed.
func (q Query) Stream(ctx context.Context, opts StreamOptions) (*RowStream, error) {
	b := NewBinder()
	c, err := q.compile(kindSelect, b)
	if err != nil {
		return nil, err
	}

	stmt, err := q.db.Prepare(ctx, c.selectSQL())
	if err != nil {
		return nil, err
	}

	prefetch := opts.Prefetch
	if prefetch <= 0 {
		prefetch = config.Cfg.StreamPrefetch
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &RowStream{
		rows:   make(chan database.Row, prefetch),
		done:   make(chan struct{}),
		cancel: cancel,
		stmt:   stmt,
		keep:   opts.KeepStatement,
	}
	go s.produce(ctx, b.Args())

	return s, nil
}

func (s *RowStream) produce(ctx context.Context, args []any) {
	interrupted := false
	_, err := s.stmt.Each(ctx, args, func(r database.Row) error {
		select {
		case s.rows <- r:
			return nil
		case <-ctx.Done():
			interrupted = true
			return database.ErrStop
		}
	})
	if interrupted && err == nil {
		err = ctx.Err()
	}
	// Only Close may end the stream quietly. A cancelled or expired caller
	// context is reported so a cut-short stream never looks complete.
	if err != nil && ctx.Err() != nil {
		switch {
		case s.stopped.Load():
			err = nil
		case !errors.Is(err, ctx.Err()):
			err = ctx.Err()
		}
	}
	if !s.keep {
		if ferr := s.stmt.Finalize(); err == nil {
			err = ferr
		}
	}

	s.err = err
	close(s.done)
	close(s.rows)
}

// Next advances to the next row. It returns false when the rows are
// exhausted, an error occurred or the stream was closed.
func (s *RowStream) Next() bool {
	if s.closed {
		return false
	}
	row, ok := <-s.rows
	if !ok {
		s.cur = nil
		return false
	}
	s.cur = row
	return true
}

// Row returns the current row.
func (s *RowStream) Row() database.Row {
	return s.cur
}

// Err returns the error that ended the stream, if any. It is only
// meaningful after Next has returned false or after Close.
func (s *RowStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Statement returns the prepared statement behind the stream.
func (s *RowStream) Statement() *database.Stmt {
	return s.stmt
}

// Close cancels any pending fetch, waits for the producer to stop and
// releases the statement unless KeepStatement was set. It is safe to call
// more than once.
func (s *RowStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed = true
		s.stopped.Store(true)
		s.cancel()
		<-s.done
		if !s.keep {
			err = s.stmt.Finalize()
		}
	})
	return err
}
