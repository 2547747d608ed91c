package scorer

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// leafFeature 叶子节点的 Feature 取值
const leafFeature = -1

// treeNode CART 回归树节点（扁平存储，子节点下标总是大于父节点）
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Samples   int     `json:"samples"`
}

// regressionTree 回归树
type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leafFeature {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate 校验反序列化得到的树结构，避免越界和死循环
func (t *regressionTree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
			return fmt.Errorf("node %d: non-finite value", i)
		}
		if n.Feature == leafFeature {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if math.IsNaN(n.Threshold) {
			return fmt.Errorf("node %d: NaN threshold", i)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children (%d, %d)", i, n.Left, n.Right)
		}
	}
	return nil
}

// depth 树深度（根节点深度为 0）
func (t *regressionTree) depth() int {
	var walk func(i, d int) int
	walk = func(i, d int) int {
		n := t.Nodes[i]
		if n.Feature == leafFeature {
			return d
		}
		return max(walk(n.Left, d+1), walk(n.Right, d+1))
	}
	return walk(0, 0)
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// treeBuilder 方差减少准则的 CART 构建器
type treeBuilder struct {
	x          [][]float64
	y          []float64
	params     treeParams
	rng        *rand.Rand
	nodes      []treeNode
	importance []float64
}

func newTreeBuilder(x [][]float64, y []float64, params treeParams, rng *rand.Rand) *treeBuilder {
	return &treeBuilder{
		x:          x,
		y:          y,
		params:     params,
		rng:        rng,
		importance: make([]float64, len(x[0])),
	}
}

// fit 在 idx 指定的样本上构建一棵树，返回树及各特征的不纯度下降总量
func (b *treeBuilder) fit(idx []int) (regressionTree, []float64) {
	b.grow(idx, 0)
	return regressionTree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	mean, sse := meanSSE(b.y, idx)
	b.nodes = append(b.nodes, treeNode{Feature: leafFeature, Value: mean, Samples: len(idx)})

	if b.params.maxDepth > 0 && depth >= b.params.maxDepth {
		return id
	}
	if len(idx) < 2*b.params.minSamplesLeaf || sse <= 1e-12 {
		return id
	}

	best, ok := b.bestSplit(idx, sse)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[best.feature] += best.gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// candidateFeatures maxFeatures<=0 或不小于特征数时使用全部特征，否则随机抽取
func (b *treeBuilder) candidateFeatures() []int {
	n := len(b.importance)
	if b.params.maxFeatures <= 0 || b.params.maxFeatures >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(n)[:b.params.maxFeatures]
}

func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (split, bool) {
	minLeaf := b.params.minSamplesLeaf
	n := len(idx)
	sorted := make([]int, n)
	best := split{gain: 0}
	found := false

	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		slices.SortFunc(sorted, func(a, c int) int { return cmp.Compare(b.x[a][f], b.x[c][f]) })

		var totalSum, totalSq float64
		for _, i := range sorted {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			yi := b.y[sorted[k-1]]
			leftSum += yi
			leftSq += yi * yi
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.x[sorted[k-1]][f], b.x[sorted[k]][f]
			if lo >= hi {
				continue
			}
			nl, nr := float64(k), float64(n-k)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > best.gain+1e-12 {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func meanSSE(y []float64, idx []int) (float64, float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	mean := sum / float64(len(idx))
	var sse float64
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}
