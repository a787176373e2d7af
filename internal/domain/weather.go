package domain

import "fmt"

// WeatherReport is the current weather at a location.
type WeatherReport struct {
	Location    string
	Temperature int
	Unit        string // "Fahrenheit" or "Celsius"
	Condition   string
}

// Spoken renders the report as a sentence suitable for TTS.
func (r WeatherReport) Spoken() string {
	return fmt.Sprintf("The current temperature in %s is %d degrees, %s.",
		r.Location, r.Temperature, r.Condition)
}
