package container

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdoc/internal/markup"
	"github.com/leapstack-labs/leapdoc/internal/placeholder"
	"github.com/leapstack-labs/leapdoc/pkg/core"
)

const documentPart = "word/document.xml"

// DOCX is a Word document template.
type DOCX struct {
	name  string
	data  []byte
	order []string          // part names in archive order
	parts map[string][]byte // uncompressed part contents
}

// OpenDOCX opens a .docx package. Data that is not a zip archive, or lacks the
// main document part, is reported as core.ErrContainerCorrupt.
func OpenDOCX(name string, data []byte) (*DOCX, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrContainerCorrupt, name, err)
	}

	d := &DOCX{name: name, data: data, parts: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		content, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s: %w", core.ErrContainerCorrupt, name, f.Name, err)
		}
		d.order = append(d.order, f.Name)
		d.parts[f.Name] = content
	}

	if _, ok := d.parts[documentPart]; !ok {
		return nil, fmt.Errorf("%w: %s: missing %s", core.ErrContainerCorrupt, name, documentPart)
	}
	return d, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Name returns the template file name.
func (d *DOCX) Name() string { return d.name }

// Kind returns KindDOCX.
func (d *DOCX) Kind() Kind { return KindDOCX }

// Ext returns ".docx".
func (d *DOCX) Ext() string { return ".docx" }

// Bytes returns the package bytes.
func (d *DOCX) Bytes() []byte { return d.data }

// textParts returns the parts that may hold placeholders: the main document
// followed by headers and footers.
func (d *DOCX) textParts() []string {
	out := []string{documentPart}
	var extra []string
	for _, name := range d.order {
		base := path.Base(name)
		if path.Dir(name) == "word" && (strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")) && strings.HasSuffix(base, ".xml") {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// RawMarkup returns the WordprocessingML of the document, headers and footers.
func (d *DOCX) RawMarkup() (string, error) {
	var b strings.Builder
	for _, name := range d.textParts() {
		b.Write(d.parts[name])
	}
	return b.String(), nil
}

// Fill substitutes values in every text part and repackages the document.
func (d *DOCX) Fill(values map[string]string) (Container, error) {
	replaced := make(map[string][]byte)
	for _, name := range d.textParts() {
		out, err := fillWordML(string(d.parts[name]), func(_ int, field string) string {
			return values[field]
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		replaced[name] = []byte(out)
	}

	data, err := d.repack(replaced)
	if err != nil {
		return nil, err
	}
	return OpenDOCX(d.name, data)
}

// FillSlots substitutes values in the main document and converts it to
// marked preview markup. Each value travels through conversion between
// private-use sentinels that are then replaced by markers.
func (d *DOCX) FillSlots(values map[string]string) (string, error) {
	var fields []string
	wordML, err := fillWordML(string(d.parts[documentPart]), func(_ int, field string) string {
		fields = append(fields, field)
		return sentinelOpen + strconv.Itoa(len(fields)-1) + sentinelMid + values[field] + sentinelClose
	})
	if err != nil {
		return "", err
	}

	converted, err := wordMLToHTML(wordML)
	if err != nil {
		return "", err
	}

	return sentinelPattern.ReplaceAllStringFunc(converted, func(m string) string {
		sub := sentinelPattern.FindStringSubmatch(m)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx >= len(fields) {
			return sub[2]
		}
		return markup.Wrap(fields[idx], sub[2])
	}), nil
}

// ToMarkup converts the main document body to HTML.
func (d *DOCX) ToMarkup() (string, error) {
	return wordMLToHTML(string(d.parts[documentPart]))
}

func (d *DOCX) repack(replaced map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range d.order {
		content := d.parts[name]
		if r, ok := replaced[name]; ok {
			content = r
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}
	return buf.Bytes(), nil
}

// Sentinels delimit substituted values while WordprocessingML is converted.
const (
	sentinelOpen  = "\uE000"
	sentinelMid   = "\uE001"
	sentinelClose = "\uE002"
)

var sentinelPattern = regexp.MustCompile(`(?s)\x{E000}(\d+)\x{E001}(.*?)\x{E002}`)

var (
	paragraphPattern = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	textPattern      = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
)

type textSegment struct {
	loc        []int // element bounds within the paragraph
	start, end int   // bounds within the joined paragraph text
}

// fillWordML replaces field tokens paragraph by paragraph. A token may be
// spread over several runs; its replacement goes into the run holding the
// opening brace and the remaining token text is removed from later runs.
func fillWordML(src string, replace func(i int, field string) string) (string, error) {
	var fillErr error
	count := 0
	out := paragraphPattern.ReplaceAllStringFunc(src, func(para string) string {
		if fillErr != nil {
			return para
		}

		locs := textPattern.FindAllStringSubmatchIndex(para, -1)
		if len(locs) == 0 {
			return para
		}

		var joined strings.Builder
		segs := make([]textSegment, len(locs))
		for i, loc := range locs {
			text := html.UnescapeString(para[loc[2]:loc[3]])
			segs[i] = textSegment{loc: loc, start: joined.Len()}
			joined.WriteString(text)
			segs[i].end = joined.Len()
		}

		full := joined.String()
		tokens, err := placeholder.Scan(full, "")
		if err != nil {
			fillErr = err
			return para
		}
		if len(tokens) == 0 {
			return para
		}

		replacements := make([]string, len(tokens))
		for i, tok := range tokens {
			replacements[i] = replace(count, tok.Value)
			count++
		}

		var b strings.Builder
		last := 0
		ti := 0
		for _, seg := range segs {
			var text strings.Builder
			pos := seg.start
			for pos < seg.end {
				for ti < len(tokens) && tokens[ti].End <= pos {
					ti++
				}
				if ti < len(tokens) && tokens[ti].Start <= pos {
					if pos == tokens[ti].Start {
						text.WriteString(replacements[ti])
					}
					pos = min(tokens[ti].End, seg.end)
					continue
				}
				next := seg.end
				if ti < len(tokens) && tokens[ti].Start < next {
					next = tokens[ti].Start
				}
				text.WriteString(full[pos:next])
				pos = next
			}

			b.WriteString(para[last:seg.loc[0]])
			b.WriteString(`<w:t xml:space="preserve">`)
			b.WriteString(html.EscapeString(text.String()))
			b.WriteString(`</w:t>`)
			last = seg.loc[1]
		}
		b.WriteString(para[last:])
		return b.String()
	})
	if fillErr != nil {
		return "", fillErr
	}
	return out, nil
}
