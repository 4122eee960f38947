package common

import (
	"fmt"
	"math"
)

// Coord is the type of coordinations (x, y, z)
type Coord float32

// Vector3 is the type of positions and scales
type Vector3 struct {
	X Coord `msgpack:"x" json:"x"`
	Y Coord `msgpack:"y" json:"y"`
	Z Coord `msgpack:"z" json:"z"`
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// DistanceTo calculates distance between two positions
func (p Vector3) DistanceTo(o Vector3) Coord {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return Coord(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Add calculates Vector3 p + Vector3 o
func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m Coord) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}

// Lerp interpolates linearly from p to o
func (p Vector3) Lerp(o Vector3, t float64) Vector3 {
	return p.Add(o.Sub(p).Mul(Coord(t)))
}

// Quaternion is the type of rotations
type Quaternion struct {
	X Coord `msgpack:"x" json:"x"`
	Y Coord `msgpack:"y" json:"y"`
	Z Coord `msgpack:"z" json:"z"`
	W Coord `msgpack:"w" json:"w"`
}

// IdentityQuaternion is the rotation that does nothing
var IdentityQuaternion = Quaternion{W: 1}

func (q Quaternion) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f, %.3f)", q.X, q.Y, q.Z, q.W)
}

func (q Quaternion) dot(o Quaternion) float64 {
	return float64(q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W)
}

// Normalized returns q scaled to unit length
func (q Quaternion) Normalized() Quaternion {
	d := math.Sqrt(q.dot(q))
	if d == 0 {
		return IdentityQuaternion
	}
	return Quaternion{q.X / Coord(d), q.Y / Coord(d), q.Z / Coord(d), q.W / Coord(d)}
}

// Lerp interpolates spherically from q to o through the shortest arc
func (q Quaternion) Lerp(o Quaternion, t float64) Quaternion {
	cos := q.dot(o)
	if cos < 0 {
		o = Quaternion{-o.X, -o.Y, -o.Z, -o.W}
		cos = -cos
	}

	var k0, k1 float64
	if cos > 0.9995 {
		// nearly parallel, fall back to normalized lerp
		k0, k1 = 1-t, t
	} else {
		theta := math.Acos(cos)
		sin := math.Sin(theta)
		k0 = math.Sin((1-t)*theta) / sin
		k1 = math.Sin(t*theta) / sin
	}

	r := Quaternion{
		X: Coord(k0*float64(q.X) + k1*float64(o.X)),
		Y: Coord(k0*float64(q.Y) + k1*float64(o.Y)),
		Z: Coord(k0*float64(q.Z) + k1*float64(o.Z)),
		W: Coord(k0*float64(q.W) + k1*float64(o.W)),
	}
	return r.Normalized()
}
