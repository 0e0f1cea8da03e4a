package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfRenderTimeout = 30 * time.Second

// A4 in inches, uniform margins. Thread exports are plain portrait text, so
// one fixed geometry is enough.
const (
	pdfPaperWidth  = 8.27
	pdfPaperHeight = 11.69
	pdfMargin      = 0.75
)

// chromiumBinaries are the executable names probed before a render, so a
// missing browser fails fast instead of timing out.
var chromiumBinaries = []string{"chromium-browser", "chromium"}

func chromiumPresent() bool {
	for _, name := range chromiumBinaries {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// renderPDF prints the rendered thread HTML through headless Chrome.
func renderPDF(html string, title string) (*Result, error) {
	if !chromiumPresent() {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pdfRenderTimeout)
	defer cancel()

	// Flags for headless mode in a container.
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// The document rides in as a data URL, so nothing has to host it.
	target := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		printThreadPage(&pdf),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

func printThreadPage(out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(pdfPaperWidth).
			WithPaperHeight(pdfPaperHeight).
			WithMarginTop(pdfMargin).
			WithMarginBottom(pdfMargin).
			WithMarginLeft(pdfMargin).
			WithMarginRight(pdfMargin).
			WithPreferCSSPageSize(true).
			Do(ctx)
		if err != nil {
			return err
		}
		*out = data
		return nil
	})
}

// percentEncodeForDataURL encodes a string for embedding in a data URL.
// Unlike url.QueryEscape, spaces become %20 rather than +.
func percentEncodeForDataURL(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9',
			b == '-', b == '_', b == '.', b == '~':
			// Unreserved characters per RFC 3986
			sb.WriteByte(b)
		case b == ' ':
			sb.WriteString("%20")
		default:
			fmt.Fprintf(&sb, "%%%02X", b)
		}
	}
	return sb.String()
}

// sanitizeFilename reduces a thread title to a safe download filename.
func sanitizeFilename(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteByte('-')
		}
	}
	name := sb.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		return "thread"
	}
	return name
}
