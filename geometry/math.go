package geometry

import (
	"math"
)

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float64, min float64, max float64, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

type Vector2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func NewVector2(x, y float64) Vector2 {
	return Vector2{X: x, Y: y}
}

func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{v.X + o.X, v.Y + o.Y}
}

func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{v.X - o.X, v.Y - o.Y}
}

func (v Vector2) Mul(s float64) Vector2 {
	return Vector2{v.X * s, v.Y * s}
}

func (v Vector2) LengthSquared() float64 {
	return v.X*v.X + v.Y*v.Y
}

func (v Vector2) Length() float64 {
	return math.Sqrt(v.LengthSquared())
}

func (v Vector2) Distance(o Vector2) float64 {
	return v.Sub(o).Length()
}

func (v Vector2) EqualWithEpsilon(o Vector2, epsilon float64) bool {
	return math.Abs(v.X-o.X) <= epsilon && math.Abs(v.Y-o.Y) <= epsilon
}

func (v Vector2) IsFinite() bool {
	return IsFinite(v.X) && IsFinite(v.Y)
}

type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func NewVector3(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

var (
	Up      = Vector3{0, 1, 0}
	Forward = Vector3{0, 0, 1}
)

func (v1 Vector3) EqualWithEpsilon(v2 Vector3, epsilon float64) bool {
	return math.Abs(v1.X-v2.X) <= epsilon &&
		math.Abs(v1.Y-v2.Y) <= epsilon &&
		math.Abs(v1.Z-v2.Z) <= epsilon
}

func (v1 Vector3) Equal(v2 Vector3) bool {
	return v1.X == v2.X && v1.Y == v2.Y && v1.Z == v2.Z
}

func (v1 Vector3) IsFinite() bool {
	return IsFinite(v1.X) && IsFinite(v1.Y) && IsFinite(v1.Z)
}

func Add(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func Sub(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func Mul(a Vector3, s float64) Vector3 {
	return Vector3{a.X * s, a.Y * s, a.Z * s}
}

func (a Vector3) Length() float64 {
	return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
}

func Distance(a Vector3, b Vector3) float64 {
	return Sub(a, b).Length()
}

func Normalized(a Vector3) Vector3 {
	length := a.Length()
	result := a
	if length != 0 {
		result.X /= length
		result.Y /= length
		result.Z /= length
	}
	return result
}

func (a Vector3) Dot(b Vector3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func Cross(a Vector3, b Vector3) Vector3 {
	return Vector3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

// AngleBetween returns the unsigned angle in degrees between a and b. Zero
// vectors yield 0.
func AngleBetween(a Vector3, b Vector3) float64 {
	denominator := a.Length() * b.Length()
	if denominator < 1e-15 {
		return 0
	}
	cos := a.Dot(b) / denominator
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Quaternion is a unit rotation. The zero value is not a valid rotation; use
// Identity.
type Quaternion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

func Identity() Quaternion {
	return Quaternion{W: 1}
}

// FromYaw returns a rotation of degrees around the Y axis. Positive values turn
// +Z toward +X.
func FromYaw(degrees float64) Quaternion {
	half := degrees * math.Pi / 360
	return Quaternion{Y: math.Sin(half), W: math.Cos(half)}
}

func (q Quaternion) IsZero() bool {
	return q.X == 0 && q.Y == 0 && q.Z == 0 && q.W == 0
}

func (q Quaternion) IsFinite() bool {
	return IsFinite(q.X) && IsFinite(q.Y) && IsFinite(q.Z) && IsFinite(q.W)
}

func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return Identity()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Rotate applies q to v.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	u := Vector3{q.X, q.Y, q.Z}
	t := Mul(Cross(u, v), 2)
	return Add(Add(v, Mul(t, q.W)), Cross(u, t))
}

// Pose is a position plus an orientation.
type Pose struct {
	Position Vector3    `json:"position" yaml:"position"`
	Rotation Quaternion `json:"rotation" yaml:"rotation"`
}

func (p Pose) IsFinite() bool {
	return p.Position.IsFinite() && p.Rotation.IsFinite()
}

func (p Pose) rotation() Quaternion {
	if p.Rotation.IsZero() {
		return Identity()
	}
	return p.Rotation.Normalized()
}

// TransformPoint maps a point from the pose's local space into world space.
func (p Pose) TransformPoint(local Vector3) Vector3 {
	return Add(p.rotation().Rotate(local), p.Position)
}

func (p Pose) Forward() Vector3 {
	return p.rotation().Rotate(Forward)
}

type Ray struct {
	From Vector3
	To   Vector3
}

// AABB is an axis aligned box.
type AABB struct {
	Min Vector3 `json:"min" yaml:"min"`
	Max Vector3 `json:"max" yaml:"max"`
}

func (b AABB) Contains(p Vector3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// IntersectSegment returns the first parameter t in [0,1] where the segment
// r.From -> r.To enters the box.
func (b AABB) IntersectSegment(r Ray) (float64, bool) {
	dir := Sub(r.To, r.From)

	tMin := 0.0
	tMax := 1.0

	slab := func(origin, d, min, max float64) bool {
		if math.Abs(d) < 1e-12 {
			return origin >= min && origin <= max
		}
		inv := 1.0 / d
		t1 := (min - origin) * inv
		t2 := (max - origin) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		return tMin <= tMax
	}

	if !slab(r.From.X, dir.X, b.Min.X, b.Max.X) ||
		!slab(r.From.Y, dir.Y, b.Min.Y, b.Max.Y) ||
		!slab(r.From.Z, dir.Z, b.Min.Z, b.Max.Z) {
		return -1, false
	}
	return tMin, true
}
