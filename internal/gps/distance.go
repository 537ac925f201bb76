// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import geo "github.com/kellydunn/golang-geo"

// Haversine returns the great-circle distance in kilometers between two
// positions given in decimal degrees, on a 6371 km sphere.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.NewPoint(lat1, lon1).GreatCircleDistance(geo.NewPoint(lat2, lon2))
}
