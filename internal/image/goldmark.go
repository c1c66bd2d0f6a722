package image

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// DefaultSizes is the responsive sizes attribute used when the site doesn't
// configure one (content column capped at 768px).
const DefaultSizes = "(max-width: 768px) 100vw, 768px"

// ResponsiveImageExtension implements goldmark.Extender: ast.Image nodes
// render as responsive <picture> elements when the processor produced
// variants for them, and as lazy-loaded <img> tags otherwise. Every local
// image reference encountered during rendering is reported through OnImage,
// which the render phase points at the build context's asset accumulator so
// the postprocess phase knows which assets rendered pages actually embed.
type ResponsiveImageExtension struct {
	processor *Processor
	sizes     string
	onImage   func(src string)
}

// NewResponsiveImageExtension creates the extension. sizes overrides the
// responsive sizes attribute ("" selects DefaultSizes); onImage, when
// non-nil, receives the destination of every local image rendered.
func NewResponsiveImageExtension(proc *Processor, sizes string, onImage func(src string)) *ResponsiveImageExtension {
	if sizes == "" {
		sizes = DefaultSizes
	}
	return &ResponsiveImageExtension{processor: proc, sizes: sizes, onImage: onImage}
}

// Extend registers the image node renderer with the goldmark instance.
func (e *ResponsiveImageExtension) Extend(m goldmark.Markdown) {
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(&imageRenderer{ext: e}, 100),
		),
	)
}

// imageRenderer renders ast.Image nodes.
type imageRenderer struct {
	ext *ResponsiveImageExtension
}

// RegisterFuncs registers the image node renderer.
func (r *imageRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindImage, r.renderImage)
}

// renderImage emits one image. A titled image wraps in <figure> with the
// title as <figcaption>; processed images become <picture> with per-format
// sources; everything else (external URLs, SVGs, unprocessed files) falls
// back to a plain lazy <img>.
func (r *imageRenderer) renderImage(
	w util.BufWriter, source []byte, node ast.Node, entering bool,
) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	n := node.(*ast.Image)
	src := string(n.Destination)
	alt := nodeAltText(n, source)
	title := ""
	if n.Title != nil {
		title = string(n.Title)
	}

	local := !isExternalURL(src)
	if local && r.ext.onImage != nil {
		r.ext.onImage(src)
	}

	if title != "" {
		_, _ = w.WriteString("<figure>")
	}

	var pi *ProcessedImage
	if r.ext.processor != nil && local && !isSVG(src) {
		pi = r.ext.processor.GetImage(src)
	}
	if pi == nil {
		r.writePlainImg(w, src, alt, title)
	} else {
		r.writePicture(w, pi, src, alt)
	}

	if title != "" {
		_, _ = fmt.Fprintf(w, "<figcaption>%s</figcaption></figure>", util.EscapeHTML([]byte(title)))
	}
	return ast.WalkSkipChildren, nil
}

func (r *imageRenderer) writePlainImg(w util.BufWriter, src, alt, title string) {
	_, _ = fmt.Fprintf(w, `<img src="%s" alt="%s" loading="lazy" decoding="async"`,
		util.EscapeHTML([]byte(src)), util.EscapeHTML([]byte(alt)))
	if title != "" {
		_, _ = fmt.Fprintf(w, ` title="%s"`, util.EscapeHTML([]byte(title)))
	}
	_, _ = w.WriteString(">")
}

func (r *imageRenderer) writePicture(w util.BufWriter, pi *ProcessedImage, src, alt string) {
	byFormat := variantsByFormat(pi.Variants)

	_, _ = w.WriteString("<picture>\n")
	if webp := byFormat["webp"]; len(webp) > 0 {
		_, _ = fmt.Fprintf(w, `  <source type="image/webp" srcset="%s" sizes="%s">`+"\n",
			srcset(webp), r.ext.sizes)
	}

	_, _ = fmt.Fprintf(w, `  <img src="%s"`, util.EscapeHTML([]byte(src)))
	if fallback := fallbackVariants(byFormat); len(fallback) > 0 {
		_, _ = fmt.Fprintf(w, ` srcset="%s" sizes="%s"`, srcset(fallback), r.ext.sizes)
	}
	_, _ = fmt.Fprintf(w, ` alt="%s" width="%d" height="%d" loading="lazy" decoding="async">`+"\n",
		util.EscapeHTML([]byte(alt)), pi.Width, pi.Height)
	_, _ = w.WriteString("</picture>")
}

// nodeAltText collects the text content of an image node's children.
func nodeAltText(n *ast.Image, source []byte) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

// variantsByFormat groups a processed image's variants by output format.
func variantsByFormat(variants []Variant) map[string][]Variant {
	byFormat := make(map[string][]Variant, 2)
	for _, v := range variants {
		byFormat[v.Format] = append(byFormat[v.Format], v)
	}
	return byFormat
}

// fallbackVariants returns the non-webp variants, the <img> srcset for
// browsers without webp support.
func fallbackVariants(byFormat map[string][]Variant) []Variant {
	var out []Variant
	for format, vs := range byFormat {
		if format != "webp" {
			out = append(out, vs...)
		}
	}
	return out
}

// srcset renders variants as a srcset attribute value: "url 320w, url 640w".
func srcset(variants []Variant) string {
	var b strings.Builder
	for i, v := range variants {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %dw", v.URL, v.Width)
	}
	return b.String()
}

// isExternalURL reports whether u is an absolute http(s) URL.
func isExternalURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// isSVG reports whether the URL points to an SVG file.
func isSVG(u string) bool {
	return strings.HasSuffix(strings.ToLower(u), ".svg")
}

// BuildSrcset builds a srcset string from a ProcessedImage for the given
// format; "" selects the non-webp fallback set. Exported for templates that
// lay out images manually.
func BuildSrcset(pi *ProcessedImage, format string) string {
	if pi == nil {
		return ""
	}
	byFormat := variantsByFormat(pi.Variants)
	if format == "" {
		return srcset(fallbackVariants(byFormat))
	}
	return srcset(byFormat[format])
}
