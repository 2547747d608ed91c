package scorer

import (
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams 随机森林超参数（随模型一起保存）
type ForestParams struct {
	NEstimators    int   `json:"n_estimators"`
	MaxDepth       int   `json:"max_depth"`
	MinSamplesLeaf int   `json:"min_samples_leaf"`
	MaxFeatures    int   `json:"max_features"`
	RandomState    int64 `json:"random_state"`
}

// forest bootstrap 采样的回归树集成，预测取各树均值
type forest struct {
	Trees []regressionTree `json:"trees"`
}

func (f *forest) predict(x []float64) float64 {
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}

// treeRNG 每棵树独立的随机源（由 random_state 和树序号决定），结果与并行度无关
func treeRNG(randomState int64, tree int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(randomState), uint64(tree)+1))
}

// fitForest 训练随机森林，返回森林和归一化后的特征重要性（合计为 1；无任何分裂时全为 0）
func fitForest(x [][]float64, y []float64, params ForestParams, nJobs int) (forest, []float64) {
	if nJobs <= 0 {
		nJobs = runtime.GOMAXPROCS(0)
	}

	n := len(x)
	nFeatures := len(x[0])
	trees := make([]regressionTree, params.NEstimators)
	perTree := make([][]float64, params.NEstimators)

	var g errgroup.Group
	g.SetLimit(nJobs)
	for t := 0; t < params.NEstimators; t++ {
		g.Go(func() error {
			rng := treeRNG(params.RandomState, t)
			idx := make([]int, n)
			for i := range idx {
				idx[i] = rng.IntN(n)
			}
			builder := newTreeBuilder(x, y, treeParams{
				maxDepth:       params.MaxDepth,
				minSamplesLeaf: params.MinSamplesLeaf,
				maxFeatures:    params.MaxFeatures,
			}, rng)
			trees[t], perTree[t] = builder.fit(idx)
			return nil
		})
	}
	_ = g.Wait()

	// 先按树归一化，再取平均，最后整体归一化
	importance := make([]float64, nFeatures)
	for _, imp := range perTree {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total <= 0 {
			continue
		}
		for i, v := range imp {
			importance[i] += v / total
		}
	}
	var total float64
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}

	return forest{Trees: trees}, importance
}
