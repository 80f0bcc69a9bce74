package detections

import "fmt"

// ClassSet is the closed set of object categories a fusion run operates on.
// Index 0 of every class-score vector is reserved for the implicit
// "no object" entry, so class i maps to vector index i+1.
type ClassSet struct {
	// Labels in index order.
	Labels []string
	// nameToIdx for fast lookup by label.
	nameToIdx map[string]int
}

// NewClassSet builds a class set from the given labels.
func NewClassSet(labels ...string) *ClassSet {
	s := &ClassSet{Labels: labels, nameToIdx: make(map[string]int, len(labels))}
	for i, l := range labels {
		s.nameToIdx[l] = i
	}
	return s
}

// Len returns the number of object categories, excluding "no object".
func (s *ClassSet) Len() int {
	return len(s.Labels)
}

// Index returns the class index for a given label.
func (s *ClassSet) Index(label string) (int, error) {
	idx, ok := s.nameToIdx[label]
	if !ok {
		return 0, fmt.Errorf("label %q not in class set", label)
	}
	return idx, nil
}

// Contains reports whether the label belongs to the set.
func (s *ClassSet) Contains(label string) bool {
	_, ok := s.nameToIdx[label]
	return ok
}

// Name returns the label for a given class index.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Labels) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", idx, len(s.Labels))
	}
	return s.Labels[idx], nil
}

// VOCClasses returns the 20 PASCAL VOC object categories, the label set the
// reference detectors (SSD, DeNet, Faster R-CNN) were trained on.
func VOCClasses() *ClassSet {
	return NewClassSet(
		"aeroplane", "bicycle", "bird", "boat", "bottle",
		"bus", "car", "cat", "chair", "cow",
		"diningtable", "dog", "horse", "motorbike", "person",
		"pottedplant", "sheep", "sofa", "train", "tvmonitor",
	)
}
