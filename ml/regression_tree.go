package ml

import (
	"errors"
	"fmt"
	"sort"
)

// TreeNode is one node of a flattened regression tree. Children are indexes
// into the same slice; leaves carry the already learning-rate scaled output.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// RegressionTree is a flattened binary tree rooted at Nodes[0].
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// validate checks a decoded tree. Every split must point strictly forward
// into the slice, which is what keeps Predict from cycling.
func (t *RegressionTree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range t.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d out of range", i, child)
			}
		}
	}
	return nil
}

// Predict walks from the root to a leaf and returns its value.
func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, ErrNotFitted
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// treeBuilder grows one second-order boosting tree over a subset of rows
// and columns.
type treeBuilder struct {
	features       [][]float64
	grad           []float64
	hess           []float64
	columns        []int
	maxDepth       int
	lambda         float64
	minChildWeight float64
	eta            float64
}

func (b *treeBuilder) build(rows []int, depth int) []TreeNode {
	g, h := b.sums(rows)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      -g / (h + b.lambda) * b.eta,
		IsLeaf:     true,
	}}
	if depth >= b.maxDepth || len(rows) < 2 {
		return leaf
	}

	feature, threshold, ok := b.findBestSplit(rows, g, h)
	if !ok {
		return leaf
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.features[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	leftNodes := b.build(left, depth+1)
	rightNodes := b.build(right, depth+1)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	})
	nodes = append(nodes, offsetNodes(leftNodes, 1)...)
	nodes = append(nodes, offsetNodes(rightNodes, 1+len(leftNodes))...)
	return nodes
}

func (b *treeBuilder) sums(rows []int) (g, h float64) {
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}
	return g, h
}

// findBestSplit scans every boundary between distinct sorted values and
// keeps the split with the largest positive structure-score gain.
func (b *treeBuilder) findBestSplit(rows []int, g, h float64) (int, float64, bool) {
	parent := g * g / (h + b.lambda)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	order := make([]int, len(rows))
	for _, col := range b.columns {
		copy(order, rows)
		sort.SliceStable(order, func(i, j int) bool {
			return b.features[order[i]][col] < b.features[order[j]][col]
		})

		var gl, hl float64
		for i := 0; i < len(order)-1; i++ {
			gl += b.grad[order[i]]
			hl += b.hess[order[i]]
			lo := b.features[order[i]][col]
			hi := b.features[order[i+1]][col]
			if lo == hi {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.minChildWeight || hr < b.minChildWeight {
				continue
			}
			gain := gl*gl/(hl+b.lambda) + gr*gr/(hr+b.lambda) - parent
			if gain > bestGain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestGain = gain
				bestFeature = col
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// offsetNodes rebases child indexes of a subtree placed at offset.
func offsetNodes(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}
