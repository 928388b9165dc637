package ocr

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cda-harvester/internal/config"
)

// pdfDoc is a minimal PDF file: numbered objects, extra trailer entries and
// optional xref offsets that point objects at the wrong byte.
type pdfDoc struct {
	objects []string
	trailer string
	offsets map[int]int
}

func (d pdfDoc) build() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(d.objects))
	for i, obj := range d.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	for n, off := range d.offsets {
		offsets[n-1] = off
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(d.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s>>\nstartxref\n%d\n%%%%EOF\n", len(d.objects)+1, d.trailer, xref)
	return buf.Bytes()
}

// content draws each line with font F1.
func content(lines ...string) string {
	var b strings.Builder
	b.WriteString("BT /F1 12 Tf 72 720 Td 14 TL\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "(%s) Tj T*\n", l)
	}
	b.WriteString("ET")
	return b.String()
}

func streamObject(data string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(data), data)
}

const (
	helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"
	pageDict  = "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents %d 0 R >>"
)

// onePage lays out catalog, page tree, page, contents and font as objects 1-5.
func onePage(stream string) pdfDoc {
	return pdfDoc{objects: []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf(pageDict, 4),
		streamObject(stream),
		helvetica,
	}}
}

// buildPDF assembles a single-page PDF that draws each line with Helvetica.
func buildPDF(lines ...string) []byte {
	return onePage(content(lines...)).build()
}

// brokenSecondPage has a readable first page and a second page whose
// contents object points into the file header.
func brokenSecondPage(lines ...string) []byte {
	d := pdfDoc{
		objects: []string{
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R 6 0 R] /Count 2 >>",
			fmt.Sprintf(pageDict, 4),
			streamObject(content(lines...)),
			helvetica,
			fmt.Sprintf(pageDict, 7),
			streamObject(content("lost page")),
		},
		offsets: map[int]int{7: 3},
	}
	return d.build()
}

// brokenCatalog points the catalog into the file header, so the reader
// opens it but fails when it first walks the page tree.
func brokenCatalog() []byte {
	d := onePage(content("never read"))
	d.offsets = map[int]int{1: 3}
	return d.build()
}

// encryptedPDF builds an RC4 40-bit (R2) document whose user password is
// empty.
func encryptedPDF(lines ...string) []byte {
	pad := []byte{
		0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
		0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
	}
	owner := bytes.Repeat([]byte{0x5a}, 32)
	id := []byte("cda-harvester-id")
	perms := uint32(0xFFFFFFFC) // -4

	h := md5.New()
	h.Write(pad)
	h.Write(owner)
	h.Write([]byte{byte(perms), byte(perms >> 8), byte(perms >> 16), byte(perms >> 24)})
	h.Write(id)
	key := h.Sum(nil)[:5]

	user := make([]byte, 32)
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(user, pad)

	// contents are object 4, generation 0
	objKey := md5.Sum(append(append([]byte{}, key...), 4, 0, 0, 0, 0))
	stream := []byte(content(lines...))
	c, _ = rc4.NewCipher(objKey[:])
	c.XORKeyStream(stream, stream)

	d := onePage(string(stream))
	d.trailer = fmt.Sprintf("/Encrypt << /Filter /Standard /V 1 /R 2 /O <%x> /U <%x> /P -4 >> /ID [<%x> <%x>] ",
		owner, user, id, id)
	return d.build()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewExtractor_Local(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local"})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, ext)
}

func TestNewExtractor_LocalDefault(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: ""})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, ext)
}

func TestNewExtractor_PdfToText(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "pdftotext", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	require.IsType(t, &PdfToText{}, ext)
	assert.Equal(t, "/usr/bin/pdftotext", ext.(*PdfToText).binPath)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestLocal_ExtractText(t *testing.T) {
	path := writeFile(t, "report.pdf", buildPDF("Drugin recommendation", "Reimburse with conditions"))

	text, err := NewLocal().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Drugin recommendation")
	assert.Contains(t, text, "Reimburse with conditions")
}

func TestLocal_ExtractText_Documents(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []string
		missing []string
		wantErr string
	}{
		{
			name: "encrypted with empty password",
			data: encryptedPDF("Confidential recommendation", "Reimburse"),
			want: []string{"Confidential recommendation", "Reimburse"},
		},
		{
			name:    "unreadable page skipped",
			data:    brokenSecondPage("Drugin recommendation"),
			want:    []string{"Drugin recommendation"},
			missing: []string{"lost page"},
		},
		{
			name:    "broken page tree",
			data:    brokenCatalog(),
			wantErr: "malformed pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "report.pdf", tt.data)

			var text string
			var err error
			require.NotPanics(t, func() {
				text, err = NewLocal().ExtractText(context.Background(), path)
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "ocr: parse")
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}
			for _, m := range tt.missing {
				assert.NotContains(t, text, m)
			}
		})
	}
}

func TestLocal_ExtractText_NoText(t *testing.T) {
	path := writeFile(t, "blank.pdf", buildPDF())

	text, err := NewLocal().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestLocal_ExtractText_NotAPDF(t *testing.T) {
	path := writeFile(t, "page.pdf", []byte("<html><body>Access denied</body></html>"))

	_, err := NewLocal().ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: parse")
}

func TestLocal_ExtractText_FileNotFound(t *testing.T) {
	_, err := NewLocal().ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: open")
}

func TestLocal_ExtractText_Cancelled(t *testing.T) {
	path := writeFile(t, "report.pdf", buildPDF("text"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal().ExtractText(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_ExtractText_BinaryNotFound(t *testing.T) {
	p := NewPdfToText("/nonexistent/pdftotext")
	_, err := p.ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	fakeBin := writeFile(t, "pdftotext", []byte("#!/bin/sh\necho 'Recommendation and Reasons'\n"))
	require.NoError(t, os.Chmod(fakeBin, 0o755))

	p := NewPdfToText(fakeBin)
	text, err := p.ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Recommendation and Reasons")
}

func TestPdfToText_ExtractText_PageBreaksAndBlank(t *testing.T) {
	paged := writeFile(t, "paged", []byte("#!/bin/sh\nprintf 'page one\\fpage two\\f'\n"))
	require.NoError(t, os.Chmod(paged, 0o755))

	text, err := NewPdfToText(paged).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page one\npage two\n", text)

	blank := writeFile(t, "blank", []byte("#!/bin/sh\nprintf '\\f\\f'\n"))
	require.NoError(t, os.Chmod(blank, 0o755))

	text, err = NewPdfToText(blank).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Empty(t, text)
}
