package core

import (
	"math"
	"time"
)

// StepFromUpdateDelay is the per-tick step that moves at speed degrees per
// second when the step methods run every delay seconds.
func StepFromUpdateDelay(delaySeconds, speed float64) float64 {
	return delaySeconds * speed
}

// StepFromUpdateFrequency is the per-tick step that moves at speed degrees
// per second when the step methods run frequency times per second.
func StepFromUpdateFrequency(frequency, speed float64) float64 {
	return speed / frequency
}

// StepFromInterval is StepFromUpdateDelay for a time.Duration tick.
func StepFromInterval(interval time.Duration, speed float64) float64 {
	return StepFromUpdateDelay(interval.Seconds(), speed)
}

// UpdateInterval converts an update frequency into the ticker period that
// drives the step methods. Non-positive frequencies yield zero.
func UpdateInterval(frequency float64) time.Duration {
	if !(frequency > 0) {
		return 0
	}
	return time.Duration(float64(time.Second) / frequency)
}

// StepsToReach counts the ticks needed to travel from one angle to another.
func StepsToReach(from, to, step float64) int {
	if !(step > 0) {
		return 0
	}
	return int(math.Ceil(math.Abs(to-from)/step - 1e-9))
}
