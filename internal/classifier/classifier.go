package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Classifier exposes the subset of inference functionality the scan flow uses.
// Implementations must be safe for concurrent calls.
type Classifier interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// Metadata describes the tensor geometry of the bundled model artifact.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
}

// ONNXClassifier runs a local ONNX artifact through a single shared session.
// The session's tensors are reused across calls, so Run is serialized.
type ONNXClassifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	metadata     Metadata
	logger       *zap.Logger
}

// NewONNXClassifier loads the model artifact and its metadata from local paths.
func NewONNXClassifier(modelPath, metadataPath string, logger *zap.Logger) (*ONNXClassifier, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.Int64s("output_shape", metadata.OutputShape))

	return &ONNXClassifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		metadata:     metadata,
		logger:       logger,
	}, nil
}

// Predict copies the input into the session tensor, runs inference, and
// returns a copy of the flattened output.
func (c *ONNXClassifier) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input size mismatch: got %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := c.outputTensor.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the session and tensors.
func (c *ONNXClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}
