// CLAUDE:SUMMARY Screenshot and PDF capture: CDP capture, data-root persistence, pdfcpu validation with page count.
package host

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/gaia/reason"
)

type screenshotParams struct {
	SessionID string `json:"session_id"`
	FullPage  bool   `json:"full_page"`
	Format    string `json:"format"`  // png (default) | jpeg
	Quality   int    `json:"quality"` // jpeg only
	Path      string `json:"path"`    // optional, relative to data root
}

type screenshotResult struct {
	Data   string `json:"data"` // base64
	Format string `json:"format"`
	Path   string `json:"path,omitempty"`
	Bytes  int    `json:"bytes"`
}

// screenshot captures the current page. Callers hold s.mu.
func (s *Session) screenshot(ctx context.Context, p screenshotParams) (*screenshotResult, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	format := "png"
	if p.Format == "jpeg" {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		format = "jpeg"
		q := p.Quality
		if q <= 0 || q > 100 {
			q = 80
		}
		req.Quality = &q
	}

	shotCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	bin, err := page.Context(shotCtx).Screenshot(p.FullPage, req)
	if err != nil {
		return nil, fmt.Errorf("host: screenshot: %w", err)
	}

	res := &screenshotResult{
		Data:   base64.StdEncoding.EncodeToString(bin),
		Format: format,
		Bytes:  len(bin),
	}
	if p.Path != "" {
		full, err := s.svc.resolveDataPath(p.Path)
		if err != nil {
			return nil, reason.Errorf(reason.NotActionable, "screenshot path: %v", err)
		}
		if err := os.WriteFile(full, bin, 0o644); err != nil {
			return nil, fmt.Errorf("host: write screenshot: %w", err)
		}
		res.Path = full
	}
	return res, nil
}

type pdfParams struct {
	SessionID string  `json:"session_id"`
	Path      string  `json:"path"` // required, relative to data root
	Landscape bool    `json:"landscape"`
	Scale     float64 `json:"scale"`
}

type pdfResult struct {
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	PageCount int    `json:"page_count"`
}

// printPDF renders the current page to PDF, writes it under the data root,
// and validates the output before reporting success. Callers hold s.mu.
func (s *Session) printPDF(ctx context.Context, p pdfParams) (*pdfResult, error) {
	if p.Path == "" {
		return nil, reason.New(reason.InvalidInput, "pdf requires path")
	}
	full, err := s.svc.resolveDataPath(p.Path)
	if err != nil {
		return nil, reason.Errorf(reason.NotActionable, "pdf path: %v", err)
	}

	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	req := &proto.PagePrintToPDF{Landscape: p.Landscape}
	if p.Scale > 0 {
		req.Scale = &p.Scale
	}

	pdfCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	stream, err := page.Context(pdfCtx).PDF(req)
	if err != nil {
		return nil, fmt.Errorf("host: print pdf: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("host: create pdf file: %w", err)
	}
	n, copyErr := io.Copy(f, stream)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("host: write pdf: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("host: close pdf: %w", closeErr)
	}

	pages, err := validatePDF(full)
	if err != nil {
		// Chrome occasionally emits a truncated stream under memory
		// pressure; a broken artifact must not report success.
		return nil, reason.Errorf(reason.NotActionable, "pdf validation failed: %v", err)
	}

	return &pdfResult{Path: full, Bytes: n, PageCount: pages}, nil
}

// validatePDF parses the written file and returns its page count.
func validatePDF(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return 0, fmt.Errorf("host: pdfcpu: %w", err)
	}
	return pctx.PageCount, nil
}
