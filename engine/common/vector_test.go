package common

import (
	"math"
	"testing"

	"github.com/bmizerany/assert"
)

func TestVector3Lerp(t *testing.T) {
	a := Vector3{0, 0, 0}
	b := Vector3{10, -10, 4}
	assert.Equal(t, a, a.Lerp(b, 0))
	assert.Equal(t, b, a.Lerp(b, 1))
	assert.Equal(t, Vector3{5, -5, 2}, a.Lerp(b, 0.5))
	assert.Equal(t, Coord(5), Vector3{3, 4, 0}.DistanceTo(a))
}

func TestQuaternionSlerp(t *testing.T) {
	half := math.Sqrt(0.5)
	// 90 degrees around Y
	to := Quaternion{Y: Coord(half), W: Coord(half)}
	mid := IdentityQuaternion.Lerp(to, 0.5)

	// 45 degrees around Y
	expectY := math.Sin(math.Pi / 8)
	expectW := math.Cos(math.Pi / 8)
	if math.Abs(float64(mid.Y)-expectY) > 1e-5 || math.Abs(float64(mid.W)-expectW) > 1e-5 {
		t.Errorf("slerp midpoint is %s", mid)
	}

	end := IdentityQuaternion.Lerp(to, 1)
	if math.Abs(end.dot(to)-1) > 1e-5 {
		t.Errorf("slerp end is %s, should be %s", end, to)
	}
}

func TestQuaternionShortestArc(t *testing.T) {
	neg := Quaternion{W: -1}
	r := IdentityQuaternion.Lerp(neg, 0.5)
	if math.Abs(math.Abs(float64(r.W))-1) > 1e-5 {
		t.Errorf("q and -q are the same rotation, got %s", r)
	}
}
