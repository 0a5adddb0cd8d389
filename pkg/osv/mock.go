package osv

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vulnscope/vulnscope/pkg/types"
)

type MockLookup struct {
	mock.Mock
}

type QueryArgs struct {
	Package         types.Package
	PackageAnything bool
}

type QueryReturns struct {
	Vulnerabilities []types.Vulnerability
	Err             error
}

type QueryExpectation struct {
	Args    QueryArgs
	Returns QueryReturns
}

func (_m *MockLookup) ApplyQueryExpectation(e QueryExpectation) {
	var args []interface{}
	args = append(args, mock.Anything)
	if e.Args.PackageAnything {
		args = append(args, mock.Anything)
	} else {
		args = append(args, e.Args.Package)
	}
	_m.On("Query", args...).Return(e.Returns.Vulnerabilities, e.Returns.Err)
}

func (_m *MockLookup) ApplyQueryExpectations(expectations []QueryExpectation) {
	for _, e := range expectations {
		_m.ApplyQueryExpectation(e)
	}
}

func (_m *MockLookup) Query(ctx context.Context, pkg types.Package) ([]types.Vulnerability, error) {
	ret := _m.Called(ctx, pkg)
	ret0 := ret.Get(0)
	if ret0 == nil {
		return nil, ret.Error(1)
	}
	vulns, ok := ret0.([]types.Vulnerability)
	if !ok {
		return nil, ret.Error(1)
	}
	return vulns, ret.Error(1)
}
