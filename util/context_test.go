package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infigaming-com/go-channels/errors"
)

func TestValueFromCtx(t *testing.T) {
	type TestStruct struct {
		Field string
	}

	t.Run("string value - success", func(t *testing.T) {
		ctx := ValueToCtx(context.Background(), "string-key", "test-value")
		got, err := ValueFromCtx[string](ctx, "string-key")
		require.NoError(t, err)
		assert.Equal(t, "test-value", got)
	})

	t.Run("struct value - success", func(t *testing.T) {
		ctx := ValueToCtx(context.Background(), "struct-key", TestStruct{Field: "test"})
		got, err := ValueFromCtx[TestStruct](ctx, "struct-key")
		require.NoError(t, err)
		assert.Equal(t, TestStruct{Field: "test"}, got)
	})

	tests := []struct {
		name        string
		ctx         context.Context
		key         CtxKey
		wantErrCode int64
	}{
		{
			name:        "nil value - error",
			ctx:         context.Background(),
			key:         "missing-key",
			wantErrCode: ErrCodeValueNotFoundInContext,
		},
		{
			name:        "wrong type - error",
			ctx:         ValueToCtx(context.Background(), "wrong-type", "string-value"),
			key:         "wrong-type",
			wantErrCode: ErrCodeInvalidValueInContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValueFromCtx[int](tt.ctx, tt.key)
			require.Error(t, err)
			var utilErr *UtilError
			require.ErrorAs(t, err, &utilErr)
			assert.Equal(t, tt.wantErrCode, utilErr.GetCode())
			assert.Equal(t, tt.wantErrCode, errors.CodeOf(err))
		})
	}
}

func TestCorrelationIdRoundTrip(t *testing.T) {
	ctx := CorrelationIdToCtx(context.Background(), "abc")
	id, err := CorrelationIdFromCtx(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = CorrelationIdFromCtx(context.Background())
	assert.Error(t, err)
}
