package ai

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockConnector struct {
	mock.Mock
}

type PromptArgs struct {
	Prompt         string
	PromptAnything bool
}

type PromptReturns struct {
	Response string
	Err      error
}

type PromptExpectation struct {
	Args    PromptArgs
	Returns PromptReturns
}

func (_m *MockConnector) ApplyPromptExpectation(e PromptExpectation) {
	var args []interface{}
	args = append(args, mock.Anything)
	if e.Args.PromptAnything {
		args = append(args, mock.Anything)
	} else {
		args = append(args, e.Args.Prompt)
	}
	_m.On("Prompt", args...).Return(e.Returns.Response, e.Returns.Err)
}

func (_m *MockConnector) ApplyPromptExpectations(expectations []PromptExpectation) {
	for _, e := range expectations {
		_m.ApplyPromptExpectation(e)
	}
}

func (_m *MockConnector) Prompt(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

func (_m *MockConnector) IsAvailable(ctx context.Context) bool {
	ret := _m.Called(ctx)
	return ret.Bool(0)
}
