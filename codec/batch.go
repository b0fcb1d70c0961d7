// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sergey0xff/protox/dynamic"
	"github.com/sergey0xff/protox/schema"
)

// MarshalAllConcurrent marshals each message in msgs independently, one
// goroutine per message, returning one encoded byte slice per input message
// in the same order. The number of goroutines running at once is not
// limited. Each goroutine owns exactly one message value end to end; no
// message value is ever touched by more than one goroutine, so the
// single-message cooperative-threading contract is preserved. On the first
// error, the errgroup context is canceled and goroutines that have not yet
// begun marshaling return without doing so; an in-flight Marshal call is
// never interrupted mid-encode.
func MarshalAllConcurrent(ctx context.Context, msgs []*dynamic.Message, opts MarshalOptions) ([][]byte, error) {
	out := make([][]byte, len(msgs))
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range msgs {
		i, m := i, m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := opts.Marshal(m)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// UnmarshalAllConcurrent is the symmetric batch helper for Unmarshal: it
// decodes each byte slice in bufs against desc, one message value per
// goroutine, returning the decoded messages in input order.
func UnmarshalAllConcurrent(ctx context.Context, bufs [][]byte, desc *schema.MessageDescriptor, opts UnmarshalOptions) ([]*dynamic.Message, error) {
	out := make([]*dynamic.Message, len(bufs))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range bufs {
		i, b := i, b
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := opts.Unmarshal(b, desc)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
