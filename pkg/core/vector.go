package core

import "math"

// Vec2 二维向量
//
// 所有乘法结果都显式转换为 float64，禁止编译器融合乘加（FMA），
// 保证不同平台回放得到逐位一致的结果。
type Vec2 struct {
	X, Y float64
}

// V 构造向量
func V(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale 数乘
func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{X: float64(v.X * k), Y: float64(v.Y * k)}
}

// LenSq 长度平方
func (v Vec2) LenSq() float64 {
	return float64(v.X*v.X) + float64(v.Y*v.Y)
}

func (v Vec2) Len() float64 {
	return math.Sqrt(v.LenSq())
}

// DistSq 两点距离平方
func (v Vec2) DistSq(o Vec2) float64 {
	return v.Sub(o).LenSq()
}

// Normalize 单位化，零向量保持为零
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// Finite 两个分量都不是 NaN 或无穷
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// ClampToArena 把圆心限制在竞技场内
func ClampToArena(p Vec2, radius float64) Vec2 {
	return Vec2{
		X: clamp(p.X, radius, ArenaWidth-radius),
		Y: clamp(p.Y, radius, ArenaHeight-radius),
	}
}

// InsideArena 判断点是否在竞技场内
func InsideArena(p Vec2) bool {
	return p.X >= 0 && p.X <= ArenaWidth && p.Y >= 0 && p.Y <= ArenaHeight
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// overlaps 判断两个圆是否相交
func overlaps(a Vec2, ra float64, b Vec2, rb float64) bool {
	r := ra + rb
	return a.DistSq(b) < float64(r*r)
}
