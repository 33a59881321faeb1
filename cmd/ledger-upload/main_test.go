package main

import (
	"context"
	"testing"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestVerify_RequiresExactlyOneFile(t *testing.T) {
	a := &app{}

	for _, args := range [][]string{nil, {"a.txt", "b.txt"}} {
		err := a.verify(context.Background(), args)
		assert.ErrorIs(t, err, apperrors.ErrVerifyFileCount)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
}
