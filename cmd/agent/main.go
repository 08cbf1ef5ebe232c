package main

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/clipsyncapp/api-clipsync/internal/agent"
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const thumbMaxEdge = 320

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	baseURL := getEnv("CLIPSYNC_API_URL", "http://localhost:8080/api/v1")
	wsURL := getEnv("CLIPSYNC_WS_URL", "ws://localhost:8080/ws")
	dataDir := getEnv("CLIPSYNC_DATA_DIR", defaultDataDir())
	mediaDir := getEnv("CLIPSYNC_MEDIA_DIR", "")
	if mediaDir == "" {
		log.Fatal("❌ CLIPSYNC_MEDIA_DIR is required")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("❌ Failed to create data dir: %v", err)
	}

	cache, err := agent.OpenCache(filepath.Join(dataDir, "clipsync.db"))
	if err != nil {
		log.Fatalf("❌ Failed to open local cache: %v", err)
	}

	installationID, err := loadInstallationID(filepath.Join(dataDir, "installation-id"))
	if err != nil {
		log.Fatalf("❌ Failed to resolve installation id: %v", err)
	}

	hostname, _ := os.Hostname()
	a := agent.New(agent.Config{
		BaseURL:  baseURL,
		WSURL:    wsURL,
		Cache:    cache,
		Scanner:  &fsScanner{root: mediaDir},
		Thumbs:   &jpegThumbnailer{outDir: filepath.Join(dataDir, "thumbs")},
		ThumbDir: filepath.Join(dataDir, "peer-thumbs"),
		Installation: model.RegisterInstallationRequest{
			ID:     installationID,
			Name:   getEnv("CLIPSYNC_DEVICE_NAME", hostname),
			OS:     "linux",
			Client: "clipsync-agent/1.0",
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ensureLoggedIn(ctx, a, cache); err != nil {
		log.Fatalf("❌ Login failed: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down agent...")
		cancel()
	}()

	log.Printf("🚀 ClipSync agent running [media=%s]", mediaDir)
	a.Run(ctx)
	log.Println("✅ Agent exited")
}

// ensureLoggedIn reuses stored tokens when present, otherwise logs in
// with the credentials from the environment.
func ensureLoggedIn(ctx context.Context, a *agent.Agent, cache *agent.Cache) error {
	if _, err := cache.Tokens(); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	unique := os.Getenv("CLIPSYNC_UNIQUE")
	secret := os.Getenv("CLIPSYNC_SECRET")
	if unique == "" || secret == "" {
		return errors.New("no stored session and CLIPSYNC_UNIQUE/CLIPSYNC_SECRET not set")
	}

	session, err := a.Client().CreateSession(ctx, unique, secret, nil)
	if err != nil {
		return err
	}
	log.Printf("🔑 Logged in as %s", session.Account.Handle)
	return nil
}

// loadInstallationID keeps the device id stable across restarts.
func loadInstallationID(path string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return uuid.Parse(strings.TrimSpace(string(data)))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return uuid.Nil, err
	}
	id := uuid.New()
	if err := os.WriteFile(path, []byte(id.String()), 0o600); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// fsScanner walks a media directory for image files.
type fsScanner struct {
	root string
}

func (s *fsScanner) Scan(ctx context.Context) ([]agent.ScannedFile, error) {
	var files []agent.ScannedFile
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isMediaFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, agent.ScannedFile{
			Path:         path,
			Dir:          filepath.Dir(path),
			Size:         info.Size(),
			ModifiedTime: info.ModTime(),
		})
		return nil
	})
	return files, err
}

func isMediaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".mp4", ".mov", ".webm":
		return true
	default:
		return false
	}
}

// jpegThumbnailer produces a downscaled JPEG next to the cache. Videos
// and undecodable files fail generation and the media is parked.
type jpegThumbnailer struct {
	outDir string
}

func (t *jpegThumbnailer) Generate(ctx context.Context, srcPath string) (string, error) {
	if err := os.MkdirAll(t.outDir, 0o755); err != nil {
		return "", err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return "", err
	}

	thumbPath := filepath.Join(t.outDir, uuid.New().String()+".jpg")
	out, err := os.Create(thumbPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := jpeg.Encode(out, downscale(img, thumbMaxEdge), &jpeg.Options{Quality: 80}); err != nil {
		os.Remove(thumbPath)
		return "", err
	}
	return thumbPath, nil
}

// downscale samples every n-th pixel so the longest edge fits maxEdge.
// Crude but dependency-free; quality is fine for sync previews.
func downscale(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	step := 1
	for w/step > maxEdge || h/step > maxEdge {
		step++
	}
	if step == 1 {
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, w/step, h/step))
	for y := 0; y < h/step; y++ {
		for x := 0; x < w/step; x++ {
			out.Set(x, y, img.At(b.Min.X+x*step, b.Min.Y+y*step))
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clipsync"
	}
	return filepath.Join(home, ".clipsync")
}
