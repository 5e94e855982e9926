package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
)

func TestDistanceMetersSymmetry(t *testing.T) {
	pairs := []struct {
		a, b Coordinates
	}{
		{Coordinates{19.0760, 72.8777}, Coordinates{28.6139, 77.2090}},
		{Coordinates{0, 0}, Coordinates{0, 180}},
		{Coordinates{-33.8688, 151.2093}, Coordinates{51.5074, -0.1278}},
		{Coordinates{89.9, 0}, Coordinates{-89.9, 0}},
	}

	for _, p := range pairs {
		ab := DistanceMeters(p.a, p.b)
		ba := DistanceMeters(p.b, p.a)
		assert.Equal(t, ab, ba, "distance must be symmetric for %v and %v", p.a, p.b)
		assert.GreaterOrEqual(t, ab, 0.0)
	}
}

func TestDistanceMetersIdentity(t *testing.T) {
	points := []Coordinates{
		{0, 0},
		{19.0760, 72.8777},
		{-90, 0},
		{90, 180},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, DistanceMeters(p, p))
	}
}

func TestDistanceMetersKnownValues(t *testing.T) {
	store := Coordinates{19.0760, 72.8777}

	// ~11 meters north of the store
	near := Coordinates{19.0760 + 0.0001, 72.8777}
	d := DistanceMeters(near, store)
	assert.InDelta(t, 11.1, d, 0.5)

	// ~1.1 km north of the store
	far := Coordinates{19.0760 + 0.01, 72.8777}
	d = DistanceMeters(far, store)
	assert.InDelta(t, 1112, d, 10)

	// Mumbai to Delhi, roughly 1150 km great-circle
	delhi := Coordinates{28.6139, 77.2090}
	d = DistanceMeters(store, delhi)
	assert.InDelta(t, 1150000, d, 20000)
}

func TestWithinProximity(t *testing.T) {
	store := Coordinates{19.0760, 72.8777}

	assert.True(t, WithinProximity(Coordinates{19.0760 + 0.0001, 72.8777}, store, 100))
	assert.False(t, WithinProximity(Coordinates{19.0760 + 0.01, 72.8777}, store, 100))
	assert.True(t, WithinProximity(store, store, 0))
}

func TestValidate(t *testing.T) {
	valid := []Coordinates{
		{0, 0},
		{-90, -180},
		{90, 180},
		{19.0760, 72.8777},
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), "%v should be valid", c)
	}

	invalid := []Coordinates{
		{91, 0},
		{-90.0001, 0},
		{0, 180.5},
		{0, -181},
		{math.NaN(), 0},
		{0, math.Inf(1)},
	}
	for _, c := range invalid {
		err := c.Validate()
		assert.Error(t, err, "%v should be invalid", c)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidCoordinates))
	}
}
