// leafnet.go LeafNet model specific code
package leafnet

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/errors"
)

// LeafNet wraps the trained leaf-disease classification model. The instance
// is expensive to construct and is loaded once at process start; Classify is
// safe for concurrent use.
type LeafNet struct {
	interpreter *tflite.Interpreter
	settings    *conf.Settings
	labels      []string
	modelName   string
	inputWidth  int
	inputHeight int
	mu          sync.Mutex
}

// New initializes a LeafNet instance from the configured model artifact. The
// class label list is part of the artifact: it is read from the file bundled
// beside the .tflite weights, and its length must match the model's output
// tensor or construction fails.
func New(settings *conf.Settings) (*LeafNet, error) {
	ln := &LeafNet{
		settings:  settings,
		modelName: filepath.Base(settings.LeafNet.ModelPath),
	}

	if err := ln.initializeModel(); err != nil {
		return nil, errors.New(fmt.Errorf("leafnet: failed to initialize model: %w", err)).
			Component("leafnet").
			Category(errors.CategoryModelInit).
			ModelContext(settings.LeafNet.ModelPath, ln.modelName).
			Build()
	}

	if err := ln.loadLabels(); err != nil {
		ln.Delete()
		return nil, errors.New(fmt.Errorf("leafnet: failed to load class labels: %w", err)).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			ModelContext(settings.LeafNet.ModelPath, ln.modelName).
			Build()
	}

	if err := ln.validateModelAndLabels(); err != nil {
		ln.Delete()
		return nil, errors.New(fmt.Errorf("leafnet: model validation failed: %w", err)).
			Component("leafnet").
			Category(errors.CategoryModelInit).
			ModelContext(settings.LeafNet.ModelPath, ln.modelName).
			Build()
	}

	return ln, nil
}

// initializeModel loads the TFLite model and allocates the interpreter.
func (ln *LeafNet) initializeModel() error {
	start := time.Now()

	modelData, err := os.ReadFile(expandPath(ln.settings.LeafNet.ModelPath))
	if err != nil {
		return errors.New(err).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			Context("model_path", ln.settings.LeafNet.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return errors.Newf("cannot load TensorFlow Lite model").
			Component("leafnet").
			Category(errors.CategoryModelInit).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := ln.settings.LeafNet.Threads
	if threads <= 0 || threads > runtime.NumCPU() {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, userData any) {
		GetLogger().Error("TFLite error", "message", msg)
	}, nil)

	ln.interpreter = tflite.NewInterpreter(model, options)
	if ln.interpreter == nil {
		return fmt.Errorf("cannot create interpreter")
	}
	if status := ln.interpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("tensor allocation failed")
	}

	// Read the fixed input resolution from the model rather than hardcoding
	// the training-time value.
	inputTensor := ln.interpreter.GetInputTensor(0)
	if inputTensor == nil || inputTensor.NumDims() != 4 {
		return fmt.Errorf("unexpected input tensor shape")
	}
	ln.inputHeight = inputTensor.Dim(1)
	ln.inputWidth = inputTensor.Dim(2)

	GetLogger().Info("LeafNet model initialized",
		"model", ln.modelName,
		"input_width", ln.inputWidth,
		"input_height", ln.inputHeight,
		"threads", threads)

	return nil
}

// loadLabels reads the class label list that ships with the model artifact.
// Order in this file is the serving order; it must match the order used when
// the model was trained.
func (ln *LeafNet) loadLabels() error {
	labelPath := ln.settings.LeafNet.LabelPath
	if labelPath == "" {
		labelPath = bundledLabelPath(ln.settings.LeafNet.ModelPath)
	}

	data, err := os.ReadFile(expandPath(labelPath))
	if err != nil {
		return errors.New(err).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", labelPath).
			Build()
	}

	labels, err := parseLabels(data)
	if err != nil {
		return errors.New(err).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", labelPath).
			Build()
	}
	ln.labels = labels
	return nil
}

// bundledLabelPath returns the label file path bundled with a model artifact:
// the .tflite extension replaced with .labels.txt.
func bundledLabelPath(modelPath string) string {
	ext := filepath.Ext(modelPath)
	return strings.TrimSuffix(modelPath, ext) + ".labels.txt"
}

// parseLabels reads one class label per line, skipping blanks and comments.
func parseLabels(data []byte) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file contains no labels")
	}
	return labels, nil
}

// validateModelAndLabels checks that the label count matches the model's
// output size. A mismatch means the serving labels drifted from the training
// labels, which would silently swap predictions; fail loudly instead.
func (ln *LeafNet) validateModelAndLabels() error {
	outputTensor := ln.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return fmt.Errorf("cannot get output tensor from model")
	}

	modelOutputSize := outputTensor.Dim(outputTensor.NumDims() - 1)
	if len(ln.labels) != modelOutputSize {
		return errors.Newf("label count mismatch: model expects %d classes but label file has %d labels",
			modelOutputSize, len(ln.labels)).
			Component("leafnet").
			Category(errors.CategoryValidation).
			Context("expected_labels", modelOutputSize).
			Context("actual_labels", len(ln.labels)).
			Build()
	}

	ln.Debug("Model validation successful: %d labels match model output size", modelOutputSize)
	return nil
}

// Labels returns the class labels in serving order.
func (ln *LeafNet) Labels() []string {
	return ln.labels
}

// ModelName returns the basename of the loaded model artifact.
func (ln *LeafNet) ModelName() string {
	return ln.modelName
}

// Delete releases resources used by the TensorFlow Lite interpreter.
func (ln *LeafNet) Delete() {
	if ln.interpreter != nil {
		ln.interpreter.Delete()
		ln.interpreter = nil
	}
}

// expandPath expands environment variables and a leading ~ in a file path.
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Debug prints debug messages if debug mode is enabled.
func (ln *LeafNet) Debug(format string, v ...any) {
	if ln.settings.LeafNet.Debug {
		GetLogger().Debug(fmt.Sprintf(format, v...))
	}
}
