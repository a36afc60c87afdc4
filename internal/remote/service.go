package remote

import (
	"context"
	"time"
)

// GenerateRequest asks the model to analyze one ready file.
type GenerateRequest struct {
	Model    string
	Prompt   string
	FileURI  string
	MIMEType string
	FPS      float64       // 0 leaves the service default
	Start    time.Duration // 0 means from the beginning
	End      time.Duration // 0 means until the end
}

// Service is the remote file-processing API.
type Service interface {
	Upload(ctx context.Context, path, displayName string) (*Handle, error)
	Get(ctx context.Context, name string) (*Handle, error)
	List(ctx context.Context) ([]*Handle, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
