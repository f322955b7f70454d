package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu    sync.Mutex
	envUsers int
)

// acquireEnvironment initializes the process-wide ONNX runtime on first use.
func acquireEnvironment(sharedLibraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envUsers == 0 {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envUsers++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	envUsers--
	if envUsers == 0 {
		ort.DestroyEnvironment()
	}
}

type OnnxOptions struct {
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string
}

// Onnx runs a model through onnxruntime with tensors bound once at load.
type Onnx struct {
	// bound tensors are shared, so runs are serialized
	mu sync.Mutex

	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	closed       bool
}

func NewOnnx(opts OnnxOptions) (*Onnx, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if err := acquireEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	inputName, outputName := metadata.InputName, metadata.OutputName
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "output"
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Onnx{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (o *Onnx) Metadata() Metadata {
	return o.metadata
}

func (o *Onnx) Classify(features []float32) ([]float32, error) {
	if len(features) != o.metadata.InputSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(features), o.metadata.InputSize())
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}

	copy(o.inputTensor.GetData(), features)

	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output := o.outputTensor.GetData()
	dist := make([]float32, len(output))
	copy(dist, output)

	if o.metadata.Logits {
		dist = Softmax(dist)
	}
	return dist, nil
}

func (o *Onnx) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	if o.inputTensor != nil {
		o.inputTensor.Destroy()
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
	}
	if o.session != nil {
		o.session.Destroy()
	}
	releaseEnvironment()
	return nil
}
