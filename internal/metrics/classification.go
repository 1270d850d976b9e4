package metrics

import "sort"

// F1Weighted computes the per-class F1 score averaged with class-support
// weights. Classes absent from labels contribute nothing.
func F1Weighted(labels, preds []int, numClasses int) float64 {
	if len(labels) == 0 || len(labels) != len(preds) {
		return 0
	}

	tp := make([]float64, numClasses)
	fp := make([]float64, numClasses)
	fn := make([]float64, numClasses)
	support := make([]float64, numClasses)

	for i, y := range labels {
		p := preds[i]
		if y < 0 || y >= numClasses || p < 0 || p >= numClasses {
			continue
		}
		support[y]++
		if p == y {
			tp[y]++
		} else {
			fp[p]++
			fn[y]++
		}
	}

	var weighted, total float64
	for c := 0; c < numClasses; c++ {
		if support[c] == 0 {
			continue
		}
		var precision, recall float64
		if tp[c]+fp[c] > 0 {
			precision = tp[c] / (tp[c] + fp[c])
		}
		if tp[c]+fn[c] > 0 {
			recall = tp[c] / (tp[c] + fn[c])
		}
		var f1 float64
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		weighted += f1 * support[c]
		total += support[c]
	}

	if total == 0 {
		return 0
	}
	return weighted / total
}

// AUCMacro computes one-vs-rest ROC AUC per class via the rank statistic and
// macro-averages over classes that have both positives and negatives.
func AUCMacro(labels []int, scores [][]float64, numClasses int) float64 {
	if len(labels) == 0 || len(labels) != len(scores) {
		return 0
	}

	var sum float64
	var counted int
	for c := 0; c < numClasses; c++ {
		auc, ok := binaryAUC(labels, scores, c)
		if !ok {
			continue
		}
		sum += auc
		counted++
	}

	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// APWeighted computes per-class average precision weighted by class support.
func APWeighted(labels []int, scores [][]float64, numClasses int) float64 {
	if len(labels) == 0 || len(labels) != len(scores) {
		return 0
	}

	var weighted, total float64
	for c := 0; c < numClasses; c++ {
		ap, support := averagePrecision(labels, scores, c)
		if support == 0 {
			continue
		}
		weighted += ap * support
		total += support
	}

	if total == 0 {
		return 0
	}
	return weighted / total
}

// binaryAUC is the Mann-Whitney rank formulation: probability a random
// positive outranks a random negative, ties counted half.
func binaryAUC(labels []int, scores [][]float64, class int) (float64, bool) {
	type scored struct {
		score float64
		pos   bool
	}

	items := make([]scored, 0, len(labels))
	var positives, negatives float64
	for i, y := range labels {
		pos := y == class
		if pos {
			positives++
		} else {
			negatives++
		}
		items = append(items, scored{score: scores[i][class], pos: pos})
	}
	if positives == 0 || negatives == 0 {
		return 0, false
	}

	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })

	// assign average ranks to tied scores
	ranks := make([]float64, len(items))
	for i := 0; i < len(items); {
		j := i
		for j < len(items) && items[j].score == items[i].score {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[k] = avg
		}
		i = j
	}

	var posRankSum float64
	for i, it := range items {
		if it.pos {
			posRankSum += ranks[i]
		}
	}

	auc := (posRankSum - positives*(positives+1)/2) / (positives * negatives)
	return auc, true
}

func averagePrecision(labels []int, scores [][]float64, class int) (ap float64, support float64) {
	idx := make([]int, len(labels))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]][class] > scores[idx[b]][class] })

	var hits, precSum float64
	for rank, i := range idx {
		if labels[i] == class {
			hits++
			precSum += hits / float64(rank+1)
		}
	}
	if hits == 0 {
		return 0, 0
	}
	return precSum / hits, hits
}
