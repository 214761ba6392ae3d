package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestError() {
	s.Run("message wins over code", func() {
		err := &Error{Code: CodeNotFound, Message: "provider not found"}
		s.Equal("provider not found", err.Error())
	})

	s.Run("falls back to code", func() {
		err := &Error{Code: CodeUnsupported}
		s.Equal("unsupported", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIs() {
	s.Run("matches by code through a fmt wrap", func() {
		err := fmt.Errorf("load license: %w", New(CodeNotFound, "license missing"))
		s.True(errors.Is(err, &Error{Code: CodeNotFound}))
		s.False(errors.Is(err, &Error{Code: CodeInternal}))
	})

	s.Run("plain errors never match", func() {
		err := &Error{Code: CodeNotFound}
		s.False(err.Is(errors.New("not_found")))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the inner domain code", func() {
		wrapped := Wrap(New(CodeNotFound, "provider not found"), CodeInternal, "verify provider")
		s.True(HasCode(wrapped, CodeNotFound))
		s.Equal("verify provider", wrapped.Error())
	})

	s.Run("assigns code to foreign errors", func() {
		root := errors.New("connection reset")
		wrapped := Wrap(root, CodeInternal, "store failure")
		s.True(HasCode(wrapped, CodeInternal))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeTimeout, CodeOf(New(CodeTimeout, "slow registry")))
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	s.False(HasCode(nil, CodeNotFound))
}
