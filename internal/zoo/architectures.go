package zoo

import (
	"strconv"

	"github.com/born-ml/born-bench/internal/model"
)

// GenericCNN is a small two-block convolutional classifier.
func GenericCNN() model.Blueprint {
	return model.Blueprint{
		Name: "GenericCNN",
		Layers: []model.LayerSpec{
			model.ConvLayer("cnn1", 20, 5, 1, 0),
			model.PoolLayer("maxpool1", 2, 2),
			model.ConvLayer("cnn2", 50, 5, 1, 0),
			model.PoolLayer("maxpool2", 2, 2),
			model.DenseLayer("ffn1", 500),
			model.OutputLayer("output"),
		},
	}
}

// LeNet is LeNet-5 with max pooling and ReLU.
func LeNet() model.Blueprint {
	return model.Blueprint{
		Name: "LeNet",
		Layers: []model.LayerSpec{
			model.ConvLayer("cnn1", 6, 5, 1, 2),
			model.PoolLayer("maxpool1", 2, 2),
			model.ConvLayer("cnn2", 16, 5, 1, 0),
			model.PoolLayer("maxpool2", 2, 2),
			model.DenseLayer("ffn1", 120),
			model.DenseLayer("ffn2", 84),
			model.OutputLayer("output"),
		},
	}
}

// AlexNet follows the single-tower layout of Krizhevsky et al. (2012).
// Convolutions draw from N(0, 0.01), dense layers from N(0, 0.005) with a
// unit bias.
func AlexNet() model.Blueprint {
	dense := model.Normal(0, 0.005)
	return model.Blueprint{
		Name: "AlexNet",
		Init: model.Normal(0, 0.01),
		Layers: []model.LayerSpec{
			model.ConvLayer("cnn1", 64, 11, 4, 2),
			model.PoolLayer("maxpool1", 3, 2),
			model.ConvLayer("cnn2", 192, 5, 2, 2).WithBias(1),
			model.PoolLayer("maxpool2", 3, 2),
			model.ConvLayer("cnn3", 384, 3, 1, 1),
			model.ConvLayer("cnn4", 256, 3, 1, 1).WithBias(1),
			model.ConvLayer("cnn5", 256, 3, 1, 1).WithBias(1),
			model.PoolLayer("maxpool3", 3, 7),
			model.DenseLayer("ffn1", 4096).WithInit(dense).WithBias(1),
			model.DenseLayer("ffn2", 4096).WithInit(dense).WithBias(1),
			model.OutputLayer("output").WithInit(dense).WithBias(1),
		},
	}
}

// VGG16 is configuration D of Simonyan and Zisserman (2014).
func VGG16() model.Blueprint {
	var layers []model.LayerSpec
	blocks := [][]int{{64, 64}, {128, 128}, {256, 256, 256}, {512, 512, 512}, {512, 512, 512}}
	n := 0
	for b, filters := range blocks {
		for _, f := range filters {
			n++
			layers = append(layers, model.ConvLayer("cnn"+strconv.Itoa(n), f, 3, 1, 1))
		}
		layers = append(layers, model.PoolLayer("maxpool"+strconv.Itoa(b+1), 2, 2))
	}
	layers = append(layers,
		model.DenseLayer("ffn1", 4096),
		model.DenseLayer("ffn2", 4096),
		model.OutputLayer("output"),
	)
	return model.Blueprint{Name: "VGG16", Layers: layers}
}

// RecurrentNet reads each image row as one time step of an Elman network
// and classifies from the last hidden state.
func RecurrentNet() model.GraphBlueprint {
	return model.GraphBlueprint{
		Name: "RNN",
		Vertices: []model.Vertex{
			{Name: "rnn1", Kind: model.RecurrentVertex, Inputs: []string{model.InputVertex}, Units: 256, Activation: model.Tanh},
			{Name: "last", Kind: model.LastStepVertex, Inputs: []string{"rnn1"}},
			{Name: "output", Kind: model.LayerVertex, Inputs: []string{"last"}, Layer: model.OutputLayer("output")},
		},
		Output: "output",
	}
}
