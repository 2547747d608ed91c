package scorer

import (
	"slices"
	"time"

	"wisefido-risk/internal/models"

	"github.com/google/uuid"
)

// Fit 在带标签的数据集上训练随机森林
//
//  1. 样本数小于 MinSamples 返回 InsufficientDataError
//  2. 校验并编码每条记录（非法记录返回 InvalidRecordError）
//  3. 按 RandomState 打乱划分训练/验证集，在训练集上拟合，记录验证集 R²
//  4. 在全量数据上做 k 折交叉验证，记录每折 R²、均值和标准差
func Fit(dataset []models.VitalRecord, cfg TrainConfig) (*TrainedModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(dataset) < cfg.MinSamples {
		return nil, &models.InsufficientDataError{Got: len(dataset), Min: cfg.MinSamples}
	}

	x, y, err := encodeDataset(dataset)
	if err != nil {
		return nil, err
	}

	params := cfg.forestParams()
	n := len(x)

	trainIdx, testIdx := trainTestSplit(n, cfg.TestFraction, cfg.RandomState)
	trainX, trainY := subset(x, y, trainIdx)
	testX, testY := subset(x, y, testIdx)

	f, importance := fitForest(trainX, trainY, params, cfg.NJobs)
	holdout := rSquared(predictAll(&f, testX), testY)

	cv := CrossValidation{
		Metric:       "r2",
		HoldoutScore: holdout,
		TrainSize:    len(trainIdx),
		TestSize:     len(testIdx),
	}
	if k := min(cfg.CVFolds, n); k >= 2 {
		cv.Folds = k
		cv.FoldScores = crossValidate(x, y, k, params, cfg.NJobs)
		cv.Mean, cv.Std = meanStd(cv.FoldScores)
	} else {
		cv.Mean = holdout
	}

	importances := make(map[string]float64, len(models.FeatureNames))
	for i, name := range models.FeatureNames {
		importances[name] = importance[i]
	}

	return &TrainedModel{
		meta: Metadata{
			ModelID:            uuid.NewString(),
			Algorithm:          Algorithm,
			FeatureNames:       slices.Clone(models.FeatureNames),
			Params:             params,
			FeatureImportances: importances,
			CrossValidation:    cv,
			DatasetSize:        n,
			TrainedAt:          time.Now().UTC(),
		},
		forest: f,
	}, nil
}

// crossValidate k 折交叉验证，返回每折 R²
func crossValidate(x [][]float64, y []float64, k int, params ForestParams, nJobs int) []float64 {
	folds := kFolds(len(x), k, params.RandomState)
	scores := make([]float64, 0, k)
	for _, valIdx := range folds {
		if len(valIdx) == 0 {
			continue
		}
		trX, trY := subset(x, y, complement(len(x), valIdx))
		vaX, vaY := subset(x, y, valIdx)
		f, _ := fitForest(trX, trY, params, nJobs)
		scores = append(scores, rSquared(predictAll(&f, vaX), vaY))
	}
	return scores
}

func predictAll(f *forest, x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = f.predict(x[i])
	}
	return out
}
