// Package features defines the sensor feature vector shared by training and inference.
//
// Every model in the system is fit against the column order returned by Vector.Values.
// Training and serving both go through that method, so the order lives in exactly one place.
package features

import (
	"fmt"
	"math"
)

// Count is the number of model input columns.
const Count = 4

// Column indexes into the array returned by Vector.Values.
const (
	CO2 = iota
	PM25
	Temp
	Humidity
)

// Names lists the columns in model input order. Artifacts record it and are rejected on load
// when it differs.
var Names = [Count]string{"co2", "pm25", "temp", "humidity"}

// Vector is one sensor observation: CO2 in ppm, PM2.5 in µg/m³, temperature in °C and
// relative humidity in %. No unit conversion is applied anywhere.
type Vector struct {
	CO2      float64 `json:"co2"`
	PM25     float64 `json:"pm25"`
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
}

// Values returns the vector as model input.
func (v Vector) Values() [Count]float64 {
	return [Count]float64{
		CO2:      v.CO2,
		PM25:     v.PM25,
		Temp:     v.Temp,
		Humidity: v.Humidity,
	}
}

// FromValues is the inverse of Values.
func FromValues(x [Count]float64) Vector {
	return Vector{
		CO2:      x[CO2],
		PM25:     x[PM25],
		Temp:     x[Temp],
		Humidity: x[Humidity],
	}
}

// Validate rejects NaN and infinite values.
func (v Vector) Validate() error {
	for i, x := range v.Values() {
		if math.IsNaN(x) {
			return fmt.Errorf("feature %s is NaN", Names[i])
		}
		if math.IsInf(x, 0) {
			return fmt.Errorf("feature %s is infinite", Names[i])
		}
	}
	return nil
}

// SchemaMatches reports whether names equals Names in order.
func SchemaMatches(names []string) bool {
	if len(names) != Count {
		return false
	}
	for i, n := range names {
		if n != Names[i] {
			return false
		}
	}
	return true
}
