// Package chat adapts a host-provided chat model handle to ai.Connector.
//
// The host owns model selection and transport; this package only drives a
// request and assembles the streamed answer.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/vulnscope/vulnscope/pkg/ai"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/types"
)

const serviceName = "chat"

// Stream yields answer fragments. Recv returns io.EOF once the answer is
// complete.
type Stream interface {
	Recv() (string, error)
}

// Model is a handle to a chat model supplied by the host.
type Model interface {
	Name() string
	Send(ctx context.Context, prompt string) (Stream, error)
}

// Selector picks the model to talk to. It fails when none is usable.
type Selector interface {
	Select(ctx context.Context) (Model, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context) (Model, error)

func (f SelectorFunc) Select(ctx context.Context) (Model, error) {
	return f(ctx)
}

type Connector struct {
	selector Selector
	timeout  time.Duration
	logger   *log.Logger
}

// New returns a connector over the models offered by selector. No CLI backend
// selects it; hosts embedding the scanner pass it to pipeline.WithConnector.
func New(selector Selector, timeout time.Duration) *Connector {
	if timeout <= 0 {
		timeout = ai.DefaultTimeout
	}
	return &Connector{
		selector: selector,
		timeout:  timeout,
		logger:   log.WithPrefix(serviceName),
	}
}

var _ ai.Connector = (*Connector)(nil)

// Prompt sends prompt to the selected model and returns the concatenated
// stream. A failure mid-stream discards the partial answer.
func (c *Connector) Prompt(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model, err := c.selector.Select(ctx)
	if err != nil {
		return "", &types.ConnectorError{Service: serviceName, Msg: "no model available", Err: err}
	}

	stream, err := model.Send(ctx, prompt)
	if err != nil {
		return "", &types.ConnectorError{Service: serviceName, Msg: "send failed", Err: err}
	}

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return "", &types.ConnectorError{Service: serviceName, Msg: "stream interrupted", Err: err}
		}
		sb.WriteString(chunk)
	}

	c.logger.Debug("Prompt answered", log.String("model", model.Name()), log.Int("bytes", sb.Len()))
	return sb.String(), nil
}

func (c *Connector) IsAvailable(ctx context.Context) bool {
	_, err := c.selector.Select(ctx)
	return err == nil
}

// StaticModel answers from a fixed list of chunks. It stands in for a host
// model in tests and offline runs.
type StaticModel struct {
	ModelName string
	Chunks    []string
	Err       error
}

func (m StaticModel) Name() string { return m.ModelName }

func (m StaticModel) Send(ctx context.Context, _ string) (Stream, error) {
	return &sliceStream{ctx: ctx, chunks: m.Chunks, err: m.Err}, nil
}

type sliceStream struct {
	ctx    context.Context
	chunks []string
	err    error
}

func (s *sliceStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}
