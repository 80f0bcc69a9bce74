package detections

import "github.com/chewxy/math32"

// ScoreVector returns the detection's class-score distribution over the
// class set, synthesizing {no-object: 1-score, label: score} when the
// detector only reported a scalar confidence.
//
// Arguments:
//   - d: The detection to read.
//   - classes: The run's class set; determines vector length (Len()+1).
//
// Returns:
//   - []float32: A fresh vector of length classes.Len()+1. The caller owns
//     it and may mutate it freely.
func ScoreVector(d Detection, classes *ClassSet) []float32 {
	v := make([]float32, classes.Len()+1)
	if d.ClassScores != nil {
		copy(v, d.ClassScores)
		return v
	}
	idx, err := classes.Index(d.Label)
	if err != nil {
		// Validate rejects unknown labels before fusion starts.
		return v
	}
	v[0] = 1 - d.Score
	v[idx+1] = d.Score
	return v
}

// Bhattacharyya computes the Bhattacharyya coefficient between two
// class-score distributions: sum over entries of sqrt(p_i * q_i). Identical
// distributions score 1, disjoint ones 0.
func Bhattacharyya(p, q []float32) float32 {
	n := len(p)
	if len(q) < n {
		n = len(q)
	}
	var bc float32
	for i := 0; i < n; i++ {
		if p[i] > 0 && q[i] > 0 {
			bc += math32.Sqrt(p[i] * q[i])
		}
	}
	if bc > 1 {
		bc = 1
	}
	return bc
}

// Normalize scales the vector in place so its entries sum to 1. A zero
// vector is left unchanged.
func Normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
