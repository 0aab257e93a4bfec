package training

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
)

// Hyperparameters control the boosted ensemble. The zero value is not
// usable; start from DefaultHyperparameters.
type Hyperparameters struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Subsample      float64 `json:"subsample"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
}

func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		NEstimators:    200,
		MaxDepth:       5,
		LearningRate:   0.1,
		Subsample:      1.0,
		MinSamplesLeaf: 5,
	}
}

// node is one split or leaf of a regression tree. Feature < 0 marks a leaf.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type regressionTree struct {
	Nodes []node `json:"nodes"`
}

func (t *regressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBRT is a gradient-boosted ensemble of regression trees under squared-error
// loss. Fitting is deterministic: the row-subsampling source is seeded with a
// fixed value, so identical inputs yield an identical model.
type GBRT struct {
	Base         float64          `json:"base"`
	LearningRate float64          `json:"learning_rate"`
	Trees        []regressionTree `json:"trees"`
	NumFeatures  int              `json:"num_features"`
	Params       Hyperparameters  `json:"params"`
}

// Fit trains the ensemble on X (rows of features) against y.
func Fit(X [][]float64, y []float64, hp Hyperparameters) *GBRT {
	n := len(y)
	model := &GBRT{
		Base:         mean(y),
		LearningRate: hp.LearningRate,
		Params:       hp,
	}
	if n == 0 {
		return model
	}
	model.NumFeatures = len(X[0])

	rng := rand.New(rand.NewPCG(11, 7))

	preds := make([]float64, n)
	for i := range preds {
		preds[i] = model.Base
	}
	residuals := make([]float64, n)

	sampleSize := n
	if hp.Subsample > 0 && hp.Subsample < 1 {
		sampleSize = int(float64(n) * hp.Subsample)
		if sampleSize < 1 {
			sampleSize = 1
		}
	}

	for m := 0; m < hp.NEstimators; m++ {
		for i := range residuals {
			residuals[i] = y[i] - preds[i]
		}

		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		if sampleSize < n {
			rng.Shuffle(n, func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
			indices = indices[:sampleSize]
		}

		t := growTree(X, residuals, indices, hp)
		model.Trees = append(model.Trees, t)

		for i := range preds {
			preds[i] += hp.LearningRate * t.predict(X[i])
		}
	}
	return model
}

// Predict scores each row. Deterministic given identical model and input.
func (m *GBRT) Predict(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = m.PredictOne(row)
	}
	return out
}

func (m *GBRT) PredictOne(row []float64) float64 {
	sum := m.Base
	for i := range m.Trees {
		sum += m.LearningRate * m.Trees[i].predict(row)
	}
	return sum
}

func (m *GBRT) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return data, nil
}

func UnmarshalModel(data []byte) (*GBRT, error) {
	var m GBRT
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &m, nil
}

type treeBuilder struct {
	X  [][]float64
	r  []float64
	hp Hyperparameters

	nodes []node
}

func growTree(X [][]float64, residuals []float64, indices []int, hp Hyperparameters) regressionTree {
	b := &treeBuilder{X: X, r: residuals, hp: hp}
	b.grow(indices, 0)
	return regressionTree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(indices []int, depth int) int {
	if depth >= b.hp.MaxDepth || len(indices) < 2*b.hp.MinSamplesLeaf {
		return b.leaf(indices)
	}

	feature, threshold, ok := b.bestSplit(indices)
	if !ok {
		return b.leaf(indices)
	}

	var left, right []int
	for _, i := range indices {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: feature, Threshold: threshold})
	b.nodes[idx].Left = b.grow(left, depth+1)
	b.nodes[idx].Right = b.grow(right, depth+1)
	return idx
}

func (b *treeBuilder) leaf(indices []int) int {
	sum := 0.0
	for _, i := range indices {
		sum += b.r[i]
	}
	value := 0.0
	if len(indices) > 0 {
		value = sum / float64(len(indices))
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: -1, Value: value})
	return idx
}

// bestSplit scans every feature for the threshold with the largest
// squared-error reduction, honoring the minimum leaf size.
func (b *treeBuilder) bestSplit(indices []int) (feature int, threshold float64, ok bool) {
	if len(indices) == 0 {
		return 0, 0, false
	}
	numFeatures := len(b.X[indices[0]])
	minLeaf := b.hp.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	var totalSum, totalSq float64
	for _, i := range indices {
		totalSum += b.r[i]
		totalSq += b.r[i] * b.r[i]
	}
	n := float64(len(indices))
	bestGain := 1e-12

	sorted := make([]int, len(indices))
	for f := 0; f < numFeatures; f++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})

		var leftSum, leftSq float64
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			leftSum += b.r[i]
			leftSq += b.r[i] * b.r[i]

			if pos+1 < minLeaf || len(sorted)-(pos+1) < minLeaf {
				continue
			}
			cur, next := b.X[i][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}

			nl := float64(pos + 1)
			nr := n - nl
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq

			sseLeft := leftSq - leftSum*leftSum/nl
			sseRight := rightSq - rightSum*rightSum/nr
			sseTotal := totalSq - totalSum*totalSum/n

			gain := sseTotal - sseLeft - sseRight
			if gain > bestGain {
				bestGain = gain
				feature = f
				threshold = (cur + next) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
