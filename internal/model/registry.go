package model

import (
	"fmt"
	"strings"
)

// Kind is the closed set of supported backbone families. The string tags on
// the CLI are normalized into a Kind immediately so dispatch stays exhaustive.
type Kind int

const (
	KindSEER Kind = iota
	KindEndoViT
	KindTimm
)

// Classify maps the declared (model_type, model_arch) pair to a Kind.
// Precedence: seer by type, then endovit by type or case-insensitive arch,
// then timm by type. Everything else is a configuration error naming the
// unsupported type.
func Classify(modelType, modelArch string) (Kind, error) {
	switch {
	case modelType == "seer":
		return KindSEER, nil
	case modelType == "endovit" || strings.EqualFold(modelArch, "endovit"):
		return KindEndoViT, nil
	case modelType == "timm":
		return KindTimm, nil
	default:
		return 0, fmt.Errorf("model type %q is not supported", modelType)
	}
}

// Select resolves the constructor for a (model_type, model_arch) pair.
func Select(modelType, modelArch string) (Constructor, error) {
	kind, err := Classify(modelType, modelArch)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindSEER:
		return NewRegNetY, nil
	case KindEndoViT:
		return NewEndoViT, nil
	case KindTimm:
		return NewTimmModel, nil
	default:
		return nil, fmt.Errorf("model kind %d has no constructor", kind)
	}
}
