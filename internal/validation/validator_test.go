package validation

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `validate:"required"`
	TopK  int     `validate:"gte=1,lte=20"`
	Mode  string  `validate:"oneof=dev prod"`
	Score float64 `validate:"gte=0,lte=5"`
}

func TestStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Struct(sample{Name: "a", TopK: 5, Mode: "dev", Score: 4.5}))
	})

	t.Run("collects every field", func(t *testing.T) {
		err := Struct(sample{TopK: 21, Mode: "x", Score: -1})
		require.Error(t, err)

		var verr *Error
		require.True(t, errors.As(err, &verr))
		require.Len(t, verr.Fields, 4)

		byField := map[string]FieldError{}
		for _, f := range verr.Fields {
			byField[f.Field] = f
		}
		assert.Equal(t, "required", byField["Name"].Tag)
		assert.Equal(t, "lte", byField["TopK"].Tag)
		assert.Equal(t, "20", byField["TopK"].Param)
		assert.Equal(t, "TopK must be at most 20", byField["TopK"].Message)
		assert.Equal(t, "oneof", byField["Mode"].Tag)
		assert.Equal(t, "gte", byField["Score"].Tag)
		assert.Contains(t, err.Error(), "Name is required")
	})

	t.Run("non struct", func(t *testing.T) {
		err := Struct(42)
		require.Error(t, err)
		var verr *Error
		assert.False(t, errors.As(err, &verr))
	})
}
