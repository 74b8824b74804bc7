package slot

import "math"

// Easing 缓动函数：t ∈ [0,1] -> 进度
type Easing func(t float64) float64

// 缓动曲线表。减速阶段默认backOut（带回弹过冲）。
var _easings = map[string]Easing{
	"linear":     easeLinear,
	"quadIn":     easeInQuad,
	"quadOut":    easeOutQuad,
	"cubicOut":   easeOutCubic,
	"backOut":    easeOutBack,
	"elasticOut": easeOutElastic,
}

// EasingByName 按名称取缓动曲线，未知名称回退linear
func EasingByName(name string) Easing {
	if e, ok := _easings[name]; ok {
		return e
	}
	return easeLinear
}

func easeLinear(t float64) float64 { return clamp01(t) }

func easeInQuad(t float64) float64 {
	t = clamp01(t)
	return t * t
}

func easeOutQuad(t float64) float64 {
	t = clamp01(t)
	return t * (2 - t)
}

func easeOutCubic(t float64) float64 {
	t = clamp01(t) - 1
	return t*t*t + 1
}

// easeOutBack 回弹过冲：结束前越过目标位置再回落
func easeOutBack(t float64) float64 {
	t = clamp01(t)
	const c1 = 1.70158
	const c3 = c1 + 1
	u := t - 1
	return 1 + c3*u*u*u + c1*u*u
}

func easeOutElastic(t float64) float64 {
	t = clamp01(t)
	if t == 0 || t == 1 {
		return t
	}
	const c4 = (2 * math.Pi) / 3
	return math.Pow(2, -10*t)*math.Sin((t*10-0.75)*c4) + 1
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
