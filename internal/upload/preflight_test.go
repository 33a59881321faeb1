package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/logging"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestChecker(t *testing.T) (*PreflightChecker, *MockBackend) {
	t.Helper()

	mock := NewMockBackend(gomock.NewController(t))
	v := NewVerificationClient(mock, logging.Discard())

	return NewPreflightChecker(mock, v, logging.Discard(), fixedClock), mock
}

func TestPreflight_NoRemoteNameProceedsWithoutHashCheck(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("new.txt", []byte("x"))

	mock.EXPECT().CheckFileName(gomock.Any(), "new.txt").Return(notExists(), nil)
	// No Verify expectation: any call fails the test.

	v, err := p.Check(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Proceed, v.Decision)
}

func TestPreflight_MatchOnSecondHashShortCircuits(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("doc.pdf", []byte("content"))

	mock.EXPECT().CheckFileName(gomock.Any(), "doc.pdf").Return(&models.RemoteNameRecord{
		Exists:      true,
		KnownHashes: []string{"h1", "h2", "h3"},
	}, nil)
	mock.EXPECT().Verify(gomock.Any(), f).Return(&models.VerificationResult{
		Matched:      true,
		ComputedHash: "H2",
	}, nil).Times(2)

	v, err := p.Check(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Skip, v.Decision)
	assert.Equal(t, models.SkipReasonDuplicate, v.Reason)
}

func TestPreflight_NoHashMatchIsConflict(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("report.final.pdf", []byte("mine"))

	mock.EXPECT().CheckFileName(gomock.Any(), gomock.Any()).Return(&models.RemoteNameRecord{
		Exists:      true,
		KnownHashes: []string{"h1", "h2"},
	}, nil)
	mock.EXPECT().Verify(gomock.Any(), f).Return(&models.VerificationResult{
		Matched:      false,
		ComputedHash: "other",
	}, nil).Times(2)

	v, err := p.Check(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Conflict, v.Decision)
	assert.Equal(t, "report.final_1700000000000.pdf", v.SuggestedName)
}

func TestPreflight_VerifyErrorCountsAsNoMatch(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("a.txt", []byte("a"))

	mock.EXPECT().CheckFileName(gomock.Any(), gomock.Any()).Return(&models.RemoteNameRecord{
		Exists:      true,
		KnownHashes: []string{"h1"},
	}, nil)
	mock.EXPECT().Verify(gomock.Any(), f).Return(nil, errors.New("connection refused"))

	v, err := p.Check(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Conflict, v.Decision)
}

func TestPreflight_ExistsWithoutHashesIsConflict(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("a.txt", []byte("a"))

	mock.EXPECT().CheckFileName(gomock.Any(), gomock.Any()).Return(&models.RemoteNameRecord{Exists: true}, nil)

	v, err := p.Check(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Conflict, v.Decision)
	assert.Equal(t, "a_1700000000000.txt", v.SuggestedName)
}

func TestPreflight_LookupFailureProceeds(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("a.txt", []byte("a"))

	mock.EXPECT().CheckFileName(gomock.Any(), gomock.Any()).Return(nil, errors.New("503"))

	v, err := p.Check(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Proceed, v.Decision)
}

func TestPreflight_CancelledContextIsError(t *testing.T) {
	p, mock := newTestChecker(t)
	f := models.NewFileEntry("a.txt", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock.EXPECT().CheckFileName(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)

	_, err := p.Check(ctx, f)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuggestName(t *testing.T) {
	at := time.UnixMilli(42)

	tests := []struct {
		name string
		want string
	}{
		{"report.pdf", "report_42.pdf"},
		{"archive.tar.gz", "archive.tar_42.gz"},
		{"README", "README_42"},
		{".env", ".env_42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestName(tt.name, at))
		})
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "proceed", Proceed.String())
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "conflict", Conflict.String())
	assert.Equal(t, "unknown", Decision(9).String())
}
