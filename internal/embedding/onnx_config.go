package embedding

// ONNXConfig configures the local ONNX embedder.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	OutputName  string
	Dimensions  int
	MaxTokens   int
}

func (c *ONNXConfig) applyDefaults() {
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
}
