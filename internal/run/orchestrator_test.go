package run

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/config"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
)

func TestFitPlanRequiresValidationLoader(t *testing.T) {
	train := &data.Loader{}

	_, _, err := fitPlan(train, nil, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "train_loader_only")

	// the validation check reports first even when both loaders are absent
	_, _, err = fitPlan(nil, nil, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation loader is absent")
}

func TestFitPlanTrainLoaderOnly(t *testing.T) {
	train := &data.Loader{}

	gotTrain, gotVal, err := fitPlan(train, nil, true)
	require.NoError(t, err)
	require.Same(t, train, gotTrain)
	require.Nil(t, gotVal)

	// an available val loader is still dropped when train_loader_only is set
	gotTrain, gotVal, err = fitPlan(train, &data.Loader{}, true)
	require.NoError(t, err)
	require.Same(t, train, gotTrain)
	require.Nil(t, gotVal)

	_, _, err = fitPlan(nil, nil, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "training loader is absent")
}

func TestFitPlanPassesBothLoaders(t *testing.T) {
	train := &data.Loader{}
	val := &data.Loader{}

	gotTrain, gotVal, err := fitPlan(train, val, false)
	require.NoError(t, err)
	require.Same(t, train, gotTrain)
	require.Same(t, val, gotVal)
}

func TestBatchSizesDefaultTo64(t *testing.T) {
	trainBS, valBS := batchSizes(&config.Config{})
	require.Equal(t, 64, trainBS)
	require.Equal(t, 64, valBS)
}

func TestBatchSizesHonorExplicitValues(t *testing.T) {
	trainBS, valBS := batchSizes(&config.Config{TrainBS: 32})
	require.Equal(t, 32, trainBS)
	require.Equal(t, 64, valBS)

	trainBS, valBS = batchSizes(&config.Config{TrainBS: 16, ValBS: 8})
	require.Equal(t, 16, trainBS)
	require.Equal(t, 8, valBS)
}

func TestArtifactNameSanitizesArch(t *testing.T) {
	require.Equal(t, "regnety_640-seer", artifactName(&config.Config{ModelArch: "regnety_640.seer"}))
	require.Equal(t, "timm", artifactName(&config.Config{ModelType: "timm"}))
}
