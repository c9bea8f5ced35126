package transform

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/pkg/logger"
)

// FromHTML parses source HTML into the structured document tree the
// destination platform stores for rich-text fields. Image references that
// match a migrated asset are rewritten into embedded-asset nodes; images
// that match nothing stay as plain content with a diagnostic.
func FromHTML(raw string, assets *domain.AssetMap, log *logger.Logger) map[string]any {
	doc := map[string]any{
		"type":     "doc",
		"children": []any{},
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return doc
	}

	root, err := html.Parse(strings.NewReader(trimmed))
	if err != nil {
		log.Warnf("rich text did not parse as HTML, keeping it as a single text node: %v", err)
		doc["children"] = []any{textNode(raw)}
		return doc
	}

	body := findBody(root)
	if body == nil {
		doc["children"] = []any{textNode(raw)}
		return doc
	}

	children := make([]any, 0)
	for node := body.FirstChild; node != nil; node = node.NextSibling {
		if converted := convertNode(node, assets, log); converted != nil {
			children = append(children, converted)
		}
	}
	doc["children"] = children
	return doc
}

func findBody(node *html.Node) *html.Node {
	if node.Type == html.ElementNode && node.Data == "body" {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if body := findBody(child); body != nil {
			return body
		}
	}
	return nil
}

func convertNode(node *html.Node, assets *domain.AssetMap, log *logger.Logger) any {
	switch node.Type {
	case html.TextNode:
		if strings.TrimSpace(node.Data) == "" {
			return nil
		}
		return textNode(node.Data)
	case html.ElementNode:
		if node.Data == "img" {
			return convertImage(node, assets, log)
		}
		return convertElement(node, assets, log)
	default:
		return nil
	}
}

func convertElement(node *html.Node, assets *domain.AssetMap, log *logger.Logger) map[string]any {
	out := map[string]any{"type": node.Data}
	if attrs := attrMap(node); len(attrs) > 0 {
		out["attrs"] = attrs
	}
	children := make([]any, 0)
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if converted := convertNode(child, assets, log); converted != nil {
			children = append(children, converted)
		}
	}
	out["children"] = children
	return out
}

// convertImage matches the image source against the migrated asset set by
// normalized path and rewrites it into an embedded-asset node.
func convertImage(node *html.Node, assets *domain.AssetMap, log *logger.Logger) map[string]any {
	attrs := attrMap(node)
	src, _ := attrs["src"].(string)

	if record, ok := assets.ByPath(domain.NormalizeAssetPath(src)); ok {
		embedded := map[string]any{
			"type": "embedded_asset",
			"uid":  record.UID,
		}
		if alt, ok := attrs["alt"].(string); ok && alt != "" {
			embedded["attrs"] = map[string]any{"alt": alt}
		}
		return embedded
	}
	if record, ok := assets.ByUID(src); ok {
		return map[string]any{"type": "embedded_asset", "uid": record.UID}
	}

	log.Warnf("rich text image %q matches no migrated asset, kept as plain content", src)
	out := map[string]any{"type": "img", "children": []any{}}
	if len(attrs) > 0 {
		out["attrs"] = attrs
	}
	return out
}

// countEmbeddedAssets walks a converted document and counts the
// embedded-asset nodes it carries.
func countEmbeddedAssets(node map[string]any) int {
	count := 0
	if node["type"] == "embedded_asset" {
		count++
	}
	children, _ := node["children"].([]any)
	for _, child := range children {
		if childNode, ok := child.(map[string]any); ok {
			count += countEmbeddedAssets(childNode)
		}
	}
	return count
}

func attrMap(node *html.Node) map[string]any {
	if len(node.Attr) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(node.Attr))
	for _, attr := range node.Attr {
		attrs[attr.Key] = attr.Val
	}
	return attrs
}

func textNode(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}
