package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sync/errgroup"

	"servostep/core"
	"servostep/observability/log"
)

// scanLines feeds input lines into lines and closes it at EOF. It is not
// part of the errgroup: a blocked read on a terminal cannot be cancelled.
func scanLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// run drives the session until quit, end of input or ctx cancellation.
// The console goroutine parses lines; the owner goroutine applies them and
// runs the update ticker, so only the owner touches the controllers.
func run(ctx context.Context, sess *session, in io.Reader, prompt bool) error {
	sess.out = &syncWriter{w: sess.out}
	interval := core.UpdateInterval(sess.updateHz)
	if interval <= 0 {
		return fmt.Errorf("invalid update rate %vHz", sess.updateHz)
	}

	lines := make(chan string)
	go scanLines(in, lines)

	commands := make(chan []string)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			if prompt {
				fmt.Fprint(sess.out, "> ")
			}
			var line string
			var ok bool
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok = <-lines:
			}
			if !ok {
				return errQuit
			}

			args, err := shlex.Split(line)
			if err != nil {
				fmt.Fprintf(sess.out, "Error: %v\n", err)
				continue
			}
			if len(args) == 0 {
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case commands <- args:
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				sess.tick()
			case args := <-commands:
				err := sess.execute(args)
				if errors.Is(err, errQuit) {
					return errQuit
				}
				if err != nil {
					sess.logger.Debug("command failed", log.String("command", args[0]), log.Error(err))
					fmt.Fprintf(sess.out, "Error: %v\n", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// syncWriter lets the console and owner goroutines share one output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
