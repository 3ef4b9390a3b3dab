package czi

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robert-malhotra/go-czi/internal/capi"
	"github.com/robert-malhotra/go-czi/internal/memczi"
)

func TestTranslateCoversStatusDomain(t *testing.T) {
	cases := []struct {
		code capi.Status
		want Kind
	}{
		{capi.StatusInvalidArgument, KindInvalidArgument},
		{capi.StatusIndexOutOfRange, KindInvalidArgument},
		{capi.StatusInvalidHandle, KindAlreadyClosed},
		{capi.StatusStreamIO, KindIO},
		{capi.StatusCorruptData, KindCorrupt},
		{capi.StatusUnsupported, KindUnsupported},
		{capi.StatusOutOfMemory, KindNativeInternal},
		{capi.StatusLockUnlockViolated, KindNativeInternal},
		{capi.StatusUnspecified, KindNativeInternal},
		// The translation is total: codes we have never seen still land in
		// a defined kind.
		{capi.Status(999), KindNativeInternal},
		{capi.Status(-1), KindNativeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, translate(tc.code), "status %d", tc.code)
	}
}

func TestErrorSentinelMatching(t *testing.T) {
	err := statusError(memczi.New(), "decode sub-block", capi.StatusCorruptData)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrIO)
	assert.NotErrorIs(t, err, ErrAlreadyClosed)

	var cerr *Error
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, KindCorrupt, cerr.Kind)
	assert.Equal(t, capi.StatusCorruptData, cerr.Code)
}

func TestErrorMessageIsLazyAndCached(t *testing.T) {
	err := statusError(memczi.New(), "lock bitmap", capi.StatusLockUnlockViolated)
	first := err.Message()
	assert.Contains(t, first, "lock")
	assert.Equal(t, first, err.Message())
	assert.Contains(t, err.Error(), "lock bitmap")
}

func TestErrorUnwrapChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := wrapError(KindIO, "stream read", capi.StatusStreamIO, cause)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
}

func TestKindStrings(t *testing.T) {
	kinds := []Kind{KindIO, KindInvalidArgument, KindUnsupported, KindCorrupt, KindAlreadyClosed, KindNativeInternal}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		assert.NotEmpty(t, s)
		assert.False(t, seen[s], "duplicate kind string %q", s)
		assert.False(t, strings.Contains(s, "Kind("), "unnamed kind %q", s)
		seen[s] = true
	}
}
