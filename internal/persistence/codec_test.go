package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/pkg/api"
)

func TestEncodeValue_Nil(t *testing.T) {
	data, err := EncodeValue(nil)
	require.NoError(t, err)
	require.Nil(t, data)

	v, err := DecodeValue[any](data)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDecodeValue_TypeMismatch(t *testing.T) {
	data, err := EncodeValue("a string")
	require.NoError(t, err)

	_, err = DecodeValue[int](data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected int, got string")

	s, err := DecodeValue[string](data)
	require.NoError(t, err)
	assert.Equal(t, "a string", s)
}

type unregisteredPayload struct{ X int }

func TestEncodeValue_UnregisteredTypeFails(t *testing.T) {
	_, err := EncodeValue(unregisteredPayload{X: 1})
	require.Error(t, err)
}

func TestDecodeResult_Empty(t *testing.T) {
	_, err := DecodeResult(nil)
	require.True(t, errors.Is(err, ErrResultNotFound))
}

func TestEncodeResult_KeepsFailureClassification(t *testing.T) {
	in := sampleResult("f-1", "pizza", api.StatusFailed, 0)
	data, err := EncodeResult(in)
	require.NoError(t, err)

	out, err := DecodeResult(data)
	require.NoError(t, err)

	assert.Equal(t, api.KindCreditCardProcessingError, api.KindOf(out.Err()))
	assert.Equal(t, in.Steps[1].LastError.Kind, out.Steps[1].LastError.Kind)
}
