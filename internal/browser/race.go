package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoWinner is returned by Race when every contender failed.
var ErrNoWinner = errors.New("race: no contender succeeded")

// Contender is one branch of a Race.
type Contender[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// RaceResult reports which contender won and its value.
type RaceResult[T any] struct {
	Winner string
	Value  T
}

// Race runs every contender concurrently and returns the first success. The
// losers' context is cancelled as soon as a winner is known, and Race returns
// only after every branch has exited. Late results are discarded.
func Race[T any](ctx context.Context, contenders ...Contender[T]) (RaceResult[T], error) {
	var zero RaceResult[T]
	if len(contenders) == 0 {
		return zero, ErrNoWinner
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		name  string
		value T
		err   error
	}
	results := make(chan outcome, len(contenders))

	var wg sync.WaitGroup
	for _, c := range contenders {
		wg.Add(1)
		go func(c Contender[T]) {
			defer wg.Done()
			v, err := c.Run(rctx)
			results <- outcome{name: c.Name, value: v, err: err}
		}(c)
	}

	var (
		won  bool
		res  RaceResult[T]
		errs []error
	)
	for range contenders {
		o := <-results
		if won {
			continue
		}
		if o.err == nil {
			won = true
			res = RaceResult[T]{Winner: o.name, Value: o.value}
			cancel()
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", o.name, o.err))
	}
	wg.Wait()

	if won {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, fmt.Errorf("%w: %w", ErrNoWinner, errors.Join(errs...))
}
