package slot

import (
	"crypto/rand"
	"encoding/binary"
	mathRand "math/rand"
	"sync"
)

// ========== 随机数生成器 ==========

var randPool = &sync.Pool{
	New: func() any {
		var seed int64
		binary.Read(rand.Reader, binary.LittleEndian, &seed)
		return mathRand.New(mathRand.NewSource(seed))
	},
}

func randIntn(n int) int {
	r := randPool.Get().(*mathRand.Rand)
	defer randPool.Put(r)
	return r.Intn(n)
}

func randInt63n(n int64) int64 {
	r := randPool.Get().(*mathRand.Rand)
	defer randPool.Put(r)
	return r.Int63n(n)
}

func randFloat64() float64 {
	r := randPool.Get().(*mathRand.Rand)
	defer randPool.Put(r)
	return r.Float64()
}
