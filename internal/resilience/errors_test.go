package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsSchemaError(t *testing.T) {
	err := NewSchemaError("missing experts field", errors.New("unmarshal"))
	assert.True(t, IsSchemaError(err))
	assert.True(t, IsSchemaError(eris.Wrap(err, "extract: parse")))
	assert.False(t, IsSchemaError(errors.New("other")))
}

func TestErrNotFound_SurvivesWrapping(t *testing.T) {
	wrapped := eris.Wrap(ErrNotFound, "store: get expert abc")
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(eris.Wrap(context.Canceled, "anthropic: create message")))
	assert.False(t, IsTimeout(errors.New("schema invalid")))
	assert.False(t, IsTimeout(nil))
}

func TestIsTransient_ExplicitWrap(t *testing.T) {
	err := NewTransientError(errors.New("503 service unavailable"), 503)
	assert.True(t, IsTransient(err))
	assert.True(t, IsTransient(eris.Wrap(err, "screen: call")))
}

func TestIsTransient_SchemaErrorIsNot(t *testing.T) {
	assert.False(t, IsTransient(NewSchemaError("bad json", nil)))
}

func TestIntegrityError_Message(t *testing.T) {
	err := &IntegrityError{SurvivorID: "a", RetiredID: "b", Err: errors.New("tx aborted")}
	assert.Contains(t, err.Error(), "a <- b")
	var ie *IntegrityError
	assert.True(t, errors.As(eris.Wrap(err, "dedupe: merge"), &ie))
}

func TestDoVal_NoRetryOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), DefaultRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransient(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = 1
	calls := 0
	val, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("overloaded"), 529)
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}
