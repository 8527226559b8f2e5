package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVector_ValuesOrder(t *testing.T) {
	v := Vector{CO2: 420.5, PM25: 32.1, Temp: 24.3, Humidity: 55.8}
	x := v.Values()

	assert.Equal(t, 420.5, x[0])
	assert.Equal(t, 32.1, x[1])
	assert.Equal(t, 24.3, x[2])
	assert.Equal(t, 55.8, x[3])
	assert.Equal(t, v, FromValues(x))
}

func TestVector_Validate(t *testing.T) {
	tests := []struct {
		name    string
		vector  Vector
		wantErr bool
	}{
		{"finite values", Vector{CO2: 400, PM25: 10, Temp: 20, Humidity: 50}, false},
		{"zero vector", Vector{}, false},
		{"NaN co2", Vector{CO2: math.NaN(), PM25: 10, Temp: 20, Humidity: 50}, true},
		{"positive infinity pm25", Vector{CO2: 400, PM25: math.Inf(1), Temp: 20, Humidity: 50}, true},
		{"negative infinity humidity", Vector{CO2: 400, PM25: 10, Temp: 20, Humidity: math.Inf(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.vector.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVector_ValidateNamesOffendingColumn(t *testing.T) {
	err := Vector{CO2: 400, PM25: 10, Temp: math.NaN(), Humidity: 50}.Validate()
	assert.ErrorContains(t, err, "temp")
}

func TestSchemaMatches(t *testing.T) {
	assert.True(t, SchemaMatches([]string{"co2", "pm25", "temp", "humidity"}))
	assert.False(t, SchemaMatches([]string{"pm25", "co2", "temp", "humidity"}))
	assert.False(t, SchemaMatches([]string{"co2", "pm25", "temp"}))
	assert.False(t, SchemaMatches(nil))
}
