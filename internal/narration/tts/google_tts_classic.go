package tts

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/sirupsen/logrus"

	"taleweaver/internal/domain/story"
)

const (
	defaultGoogleVoice    = "en-US-Chirp3-HD-Charon"
	defaultGoogleLanguage = "en-US"
	// Requests are limited to 5000 bytes of input.
	chunkLimit = 4800
)

type synthesizeFunc func(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)

// GoogleClassicSynthesizer renders narration with Google Cloud Text-to-Speech,
// caching each chunk on disk as mp3.
type GoogleClassicSynthesizer struct {
	client     *texttospeech.Client
	synthesize synthesizeFunc
	voice      string
	language   string
	speed      float64
	volume     float64
	cacheDir   string
	log        *logrus.Entry

	mu sync.Mutex
}

func newGoogleClassicSynthesizer(ctx context.Context, cfg Config, log *logrus.Entry) (*GoogleClassicSynthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	g, err := newGoogleWith(func(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
		return client.SynthesizeSpeech(ctx, req)
	}, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.client = client
	return g, nil
}

func newGoogleWith(fn synthesizeFunc, cfg Config, log *logrus.Entry) (*GoogleClassicSynthesizer, error) {
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("narration cache directory is not configured")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	voice := cfg.Voice
	if voice == "" || voice == "default" {
		voice = defaultGoogleVoice
	}
	language := cfg.Language
	if language == "" {
		language = languageFromVoice(voice)
	}
	return &GoogleClassicSynthesizer{
		synthesize: fn,
		voice:      voice,
		language:   language,
		speed:      cfg.Speed,
		volume:     cfg.Volume,
		cacheDir:   cfg.CacheDir,
		log:        log,
	}, nil
}

func (g *GoogleClassicSynthesizer) Name() string {
	return EngineTypeGoogleClassic.String()
}

// Synthesize returns the narration for text as one mp3 clip. Chunks already
// in the cache are not requested again.
func (g *GoogleClassicSynthesizer) Synthesize(ctx context.Context, text string) (story.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return story.AudioClip{}, ErrEmptyText
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	contentHash := md5Sum(fmt.Sprintf("%s|%s|%.2f", text, g.voice, g.speed))[:12]
	chunks := splitIntoChunks(text, chunkLimit)

	var out bytes.Buffer
	for i, chunk := range chunks {
		chunkPath := filepath.Join(g.cacheDir, fmt.Sprintf("%s_%d.mp3", contentHash, i))

		data, err := os.ReadFile(chunkPath)
		if err == nil && len(data) > 0 {
			out.Write(data)
			continue
		}

		resp, err := g.synthesize(ctx, g.request(chunk))
		if err != nil {
			return story.AudioClip{}, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}
		if err := os.WriteFile(chunkPath, resp.AudioContent, 0644); err != nil {
			g.log.WithError(err).WithField("path", chunkPath).Warn("Failed to cache narration chunk")
		}
		g.log.WithFields(logrus.Fields{"chunk": i + 1, "chunks": len(chunks)}).Debug("Synthesized narration chunk")
		out.Write(resp.AudioContent)
	}

	return story.AudioClip{Data: out.Bytes(), Format: "mp3"}, nil
}

func (g *GoogleClassicSynthesizer) request(chunk string) *texttospeechpb.SynthesizeSpeechRequest {
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices reject speaking rate and gain.
	if !strings.Contains(strings.ToLower(g.voice), "chirp") {
		if g.speed > 0 {
			audioCfg.SpeakingRate = g.speed
		}
		audioCfg.VolumeGainDb = g.volume
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.voice,
		},
		AudioConfig: audioCfg,
	}
}

// CacheStats reports the number and size of cached chunks.
func (g *GoogleClassicSynthesizer) CacheStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalFiles int64
	var totalSize int64
	err := filepath.Walk(g.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".mp3") {
			totalFiles++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats["cache_directory"] = g.cacheDir
	stats["cached_files"] = totalFiles
	stats["total_size_mb"] = float64(totalSize) / (1024 * 1024)
	return stats, nil
}

// ClearCache removes all cached chunks.
func (g *GoogleClassicSynthesizer) ClearCache() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := os.RemoveAll(g.cacheDir); err != nil {
		return fmt.Errorf("failed to clear narration cache: %w", err)
	}
	return os.MkdirAll(g.cacheDir, 0755)
}

// Close releases the API client.
func (g *GoogleClassicSynthesizer) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return defaultGoogleLanguage
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// splitIntoChunks splits text into pieces of at most limit runes, breaking at
// the last whitespace inside the window when there is one.
func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		cut := end
		for i := end; i > start; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[start:cut]))
		start = cut
	}
	return chunks
}
