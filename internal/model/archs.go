package model

import "fmt"

// Hidden widths per backbone family. The families share the training core;
// they differ in capacity and in how pretrained snapshots are named.
const (
	seerHiddenSize    = 96
	endovitHiddenSize = 128
	timmHiddenSize    = 64
)

// NewRegNetY builds the SEER-pretrained RegNetY classifier.
func NewRegNetY(p Params) (Model, error) {
	name := p.Arch
	if name == "" {
		name = "regnety_640.seer"
	}
	return newBackbone(name, seerHiddenSize, p)
}

// NewEndoViT builds the endoscopy-pretrained ViT classifier.
func NewEndoViT(p Params) (Model, error) {
	return newBackbone("endovit", endovitHiddenSize, p)
}

// NewTimmModel builds a generic timm-style backbone named by model_arch.
func NewTimmModel(p Params) (Model, error) {
	if p.Arch == "" {
		return nil, fmt.Errorf("timm model requires model_arch")
	}
	return newBackbone(p.Arch, timmHiddenSize, p)
}
