package scorer

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// rSquared 决定系数；真实值方差为 0 时返回 0
func rSquared(predicted, actual []float64) float64 {
	if len(actual) == 0 || stat.Variance(actual, nil) == 0 || len(actual) < 2 {
		return 0
	}
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}

// meanStd 均值和样本标准差（少于 2 个值时标准差为 0）
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// shuffledIndices 由 seed 决定的 0..n-1 排列
func shuffledIndices(n int, seed int64) []int {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
	return rng.Perm(n)
}

// trainTestSplit 按 testFraction 划分，两个分区都至少保留 1 条
func trainTestSplit(n int, testFraction float64, seed int64) (train, test []int) {
	perm := shuffledIndices(n, seed)
	nTest := int(math.Round(float64(n) * testFraction))
	nTest = max(1, min(nTest, n-1))
	return perm[nTest:], perm[:nTest]
}

// kFolds 打乱后切分为 k 折，返回每折的验证集下标
func kFolds(n, k int, seed int64) [][]int {
	perm := shuffledIndices(n, seed+1)
	folds := make([][]int, k)
	for i, idx := range perm {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds
}

// complement 返回 0..n-1 中不属于 exclude 的下标
func complement(n int, exclude []int) []int {
	skip := make([]bool, n)
	for _, i := range exclude {
		skip[i] = true
	}
	out := make([]int, 0, n-len(exclude))
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

func subset(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for j, i := range idx {
		xs[j] = x[i]
		ys[j] = y[i]
	}
	return xs, ys
}
