package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/httpclient"
	"github.com/gabriel-vasile/mimetype"
)

// saveImages downloads images into dir, naming each file after the image and
// choosing the extension from the detected content type. It returns the
// paths written; a failed download does not stop the others.
func saveImages(ctx context.Context, hc *httpclient.Client, dir string, images []events.Image) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	var (
		paths []string
		errs  []error
	)
	for i, img := range images {
		path, err := saveImage(ctx, hc, dir, i, img)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", img.Name, err))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func saveImage(ctx context.Context, hc *httpclient.Client, dir string, i int, img events.Image) (string, error) {
	req, err := hc.Request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.Get(img.URL)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	body := resp.Body()
	mt := mimetype.Detect(body)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("not an image: %s", mt.String())
	}

	path := filepath.Join(dir, imageFileName(img.Name, i)+mt.Extension())
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// imageFileName strips directories and any extension from name.
func imageFileName(name string, i int) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		return fmt.Sprintf("image_%d", i+1)
	}
	return base
}
