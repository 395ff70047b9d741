package window

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/core-tools/hsu-vpnshell/pkg/communication"
	"github.com/core-tools/hsu-vpnshell/pkg/errors"
)

func TestValidateSize(t *testing.T) {
	assert.NoError(t, ValidateSize(TermsSize))
	assert.NoError(t, ValidateSize(AppSize))

	err := ValidateSize(Size{Width: 0, Height: 650})
	assert.True(t, errors.IsValidationError(err))
	assert.Error(t, ValidateSize(Size{Width: 650, Height: -1}))
}

func TestFactoryFunc(t *testing.T) {
	var requested Size
	factory := FactoryFunc(func(size Size) (Window, communication.MessageBus, error) {
		requested = size
		return nil, nil, errors.NewInternalError("no display", nil)
	})

	_, _, err := factory.Create(TermsSize)
	assert.Error(t, err)
	assert.Equal(t, TermsSize, requested)
}
