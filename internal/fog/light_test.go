package fog

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestDownwardRotationIsAccepted(t *testing.T) {
	assert.NoError(t, validateLight(&Light{Type: DirectionalLight, Rotation: DownwardRotation()}))

	// Float noise well under the tolerance on an axis that should be zero.
	tilt := mgl32.QuatRotate(1e-6, mgl32.Vec3{1, 0, 0}).Mul(DownwardRotation())
	assert.NoError(t, validateLight(&Light{Type: DirectionalLight, Rotation: tilt}))
}

func TestValidateLightRejectsTilt(t *testing.T) {
	tilt := mgl32.QuatRotate(mgl32.DegToRad(5), mgl32.Vec3{1, 0, 0}).Mul(DownwardRotation())
	err := validateLight(&Light{Type: DirectionalLight, Rotation: tilt})
	assert.True(t, errors.Is(err, ErrLightOrientation))

	err = validateLight(&Light{Type: DirectionalLight, Rotation: mgl32.QuatIdent()})
	assert.True(t, errors.Is(err, ErrLightOrientation))

	assert.True(t, errors.Is(validateLight(nil), ErrLightType))
}

func TestLightTypeString(t *testing.T) {
	assert.Equal(t, "directional", DirectionalLight.String())
	assert.Equal(t, "spot", SpotLight.String())
	assert.Equal(t, "LightType(9)", LightType(9).String())
}
