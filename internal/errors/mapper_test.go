package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/matchmaker/internal/errors"
)

func TestMap(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", svcErr.Validation("email is required"), codes.InvalidArgument},
		{"duplicate email", svcErr.ErrDuplicateEmail, codes.AlreadyExists},
		{"already liked", fmt.Errorf("like 1->2: %w", svcErr.ErrAlreadyLiked), codes.AlreadyExists},
		{"self like", svcErr.ErrSelfLike, codes.FailedPrecondition},
		{"rate limit", svcErr.ErrRateLimitExceeded, codes.ResourceExhausted},
		{"target not found", svcErr.ErrTargetNotFound, codes.NotFound},
		{"gorm not found", gorm.ErrRecordNotFound, codes.NotFound},
		{"geocoding", svcErr.ErrGeocodingUnavailable, codes.Unavailable},
		{"storage", svcErr.Storage("insert match", errors.New("disk full")), codes.Unavailable},
		{"storage deadline", svcErr.Storage("insert match", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"canceled", context.Canceled, codes.Canceled},
		{"unknown", errors.New("boom"), codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, ok := status.FromError(svcErr.Map(tc.err))
			assert.True(t, ok)
			assert.Equal(t, tc.code, st.Code())
		})
	}

	assert.NoError(t, svcErr.Map(nil))
}

func TestStorageKeepsDomainErrors(t *testing.T) {
	assert.Same(t, svcErr.ErrDuplicateEmail, svcErr.Storage("create participant", svcErr.ErrDuplicateEmail))
	assert.Nil(t, svcErr.Storage("noop", nil))

	wrapped := svcErr.Storage("find participant", errors.New("connection reset"))
	assert.True(t, svcErr.IsStorage(wrapped))
	assert.False(t, errors.Is(wrapped, svcErr.ErrTargetNotFound))
	assert.Equal(t, wrapped, svcErr.Storage("outer", wrapped))
}
