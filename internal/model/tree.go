package model

import (
	"fmt"
)

// leaf marks a node without children in the flattened tree arrays.
const leaf = -1

// Tree is a binary regression tree in flattened array form. Node i splits
// on Feature[i] at Threshold[i]: values <= threshold go to ChildrenLeft[i].
// Leaves have both children set to -1 and carry their prediction in Value.
type Tree struct {
	ChildrenLeft  []int
	ChildrenRight []int
	Feature       []int
	Threshold     []float64
	Value         []float64
}

func (t *Tree) validate(width int) error {
	n := len(t.Value)
	if n == 0 {
		return fmt.Errorf("%w: empty tree", ErrModelUnavailable)
	}
	if len(t.ChildrenLeft) != n || len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n {
		return fmt.Errorf("%w: tree arrays differ in length", ErrModelUnavailable)
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf && r == leaf {
			continue
		}
		// Children always follow their parent, which rules out cycles.
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("%w: node %d has invalid children", ErrModelUnavailable, i)
		}
		if t.Feature[i] < 0 || (width > 0 && t.Feature[i] >= width) {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrModelUnavailable, i, t.Feature[i])
		}
	}
	return nil
}

func (t *Tree) evaluate(features []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if features[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// RandomForest averages its trees.
type RandomForest struct {
	Trees []Tree
	Width int
}

// Predict returns the mean tree prediction.
func (f *RandomForest) Predict(features []float64) (float64, error) {
	if err := checkWidth("random forest", len(features), f.Width); err != nil {
		return 0, err
	}
	if len(f.Trees) == 0 {
		return 0, fmt.Errorf("%w: forest has no trees", ErrPredictionFailed)
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].evaluate(features)
	}
	return sum / float64(len(f.Trees)), nil
}

// GradientBoosting sums shrunken tree predictions on top of an initial
// estimate.
type GradientBoosting struct {
	Init         float64
	LearningRate float64
	Trees        []Tree
	Width        int
}

// Predict returns init + learningRate·Σ tree.
func (g *GradientBoosting) Predict(features []float64) (float64, error) {
	if err := checkWidth("gradient boosting", len(features), g.Width); err != nil {
		return 0, err
	}
	y := g.Init
	for i := range g.Trees {
		y += g.LearningRate * g.Trees[i].evaluate(features)
	}
	return y, nil
}
