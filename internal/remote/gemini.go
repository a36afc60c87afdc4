package remote

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// GeminiService implements Service on the Gemini Files API.
type GeminiService struct {
	client *genai.Client
}

func NewGeminiService(ctx context.Context, apiKey string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiService{client: client}, nil
}

func (g *GeminiService) Upload(ctx context.Context, path, displayName string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if displayName == "" {
		displayName = filepath.Base(path)
	}
	mimeType := mimeTypeFor(path)

	log.Debug().Str("path", path).Str("mime_type", mimeType).Msg("Uploading to Gemini Files API")

	file, err := g.client.Files.Upload(ctx, f, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}
	return handleFromFile(file), nil
}

func (g *GeminiService) Get(ctx context.Context, name string) (*Handle, error) {
	file, err := g.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return handleFromFile(file), nil
}

func (g *GeminiService) List(ctx context.Context) ([]*Handle, error) {
	var handles []*Handle
	for file, err := range g.client.Files.All(ctx) {
		if err != nil {
			return nil, err
		}
		handles = append(handles, handleFromFile(file))
	}
	return handles, nil
}

func (g *GeminiService) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	videoPart := &genai.Part{
		FileData: &genai.FileData{
			FileURI:  req.FileURI,
			MIMEType: req.MIMEType,
		},
	}
	if meta := videoMetadata(req); meta != nil {
		videoPart.VideoMetadata = meta
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{videoPart, {Text: req.Prompt}},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, nil)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model %s returned an empty response", req.Model)
	}
	return text, nil
}

func videoMetadata(req GenerateRequest) *genai.VideoMetadata {
	if req.FPS <= 0 && req.Start <= 0 && req.End <= 0 {
		return nil
	}
	meta := &genai.VideoMetadata{
		StartOffset: req.Start,
		EndOffset:   req.End,
	}
	if req.FPS > 0 {
		fps := req.FPS
		meta.FPS = &fps
	}
	return meta
}

func handleFromFile(f *genai.File) *Handle {
	h := &Handle{
		Name:           f.Name,
		DisplayName:    f.DisplayName,
		URI:            f.URI,
		MIMEType:       f.MIMEType,
		ServiceState:   string(f.State),
		CreateTime:     f.CreateTime,
		UpdateTime:     f.UpdateTime,
		ExpirationTime: f.ExpirationTime,
		SHA256:         f.Sha256Hash,
	}
	if f.SizeBytes != nil {
		h.SizeBytes = *f.SizeBytes
	}
	if f.Error != nil {
		h.ErrorMessage = f.Error.Message
	}
	return h
}

func mimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
