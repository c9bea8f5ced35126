package transform

import (
	"testing"

	"github.com/rpattn/stackshift/internal/domain"
	"github.com/rpattn/stackshift/pkg/logger"
)

func children(t *testing.T, node map[string]any) []any {
	t.Helper()
	out, ok := node["children"].([]any)
	if !ok {
		t.Fatalf("node %v has no children", node)
	}
	return out
}

func TestFromHTMLBuildsDocumentTree(t *testing.T) {
	doc := FromHTML(`<p>Hello <strong>world</strong></p>`, domain.NewAssetMap(), logger.New())

	if doc["type"] != "doc" {
		t.Fatalf("root type = %v, want doc", doc["type"])
	}
	top := children(t, doc)
	if len(top) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(top))
	}
	para := top[0].(map[string]any)
	if para["type"] != "p" {
		t.Errorf("first node = %v, want p", para["type"])
	}
	inner := children(t, para)
	if len(inner) != 2 {
		t.Fatalf("expected text + strong inside paragraph, got %d nodes", len(inner))
	}
	if text := inner[0].(map[string]any); text["text"] != "Hello " {
		t.Errorf("leading text = %v", text["text"])
	}
	if strong := inner[1].(map[string]any); strong["type"] != "strong" {
		t.Errorf("second node = %v, want strong", strong["type"])
	}
}

func TestFromHTMLRewritesMatchedImages(t *testing.T) {
	assets := domain.NewAssetMap()
	assets.Add(domain.AssetRecord{UID: "assets_5", SourceURI: "public://photos/cat.jpg"}, "photos/cat.jpg")

	doc := FromHTML(`<p><img src="/sites/default/files/photos/cat.jpg" alt="a cat"></p>`, assets, logger.New())
	para := children(t, doc)[0].(map[string]any)
	img := children(t, para)[0].(map[string]any)

	if img["type"] != "embedded_asset" {
		t.Fatalf("image node type = %v, want embedded_asset", img["type"])
	}
	if img["uid"] != "assets_5" {
		t.Errorf("uid = %v, want assets_5", img["uid"])
	}
	attrs := img["attrs"].(map[string]any)
	if attrs["alt"] != "a cat" {
		t.Errorf("alt = %v, want a cat", attrs["alt"])
	}
}

func TestFromHTMLKeepsUnmatchedImagesAsPlainContent(t *testing.T) {
	doc := FromHTML(`<img src="https://elsewhere.example/x.png">`, domain.NewAssetMap(), logger.New())
	img := children(t, doc)[0].(map[string]any)

	if img["type"] != "img" {
		t.Fatalf("unmatched image node = %v, want img", img["type"])
	}
	attrs := img["attrs"].(map[string]any)
	if attrs["src"] != "https://elsewhere.example/x.png" {
		t.Errorf("src = %v", attrs["src"])
	}
}

func TestFromHTMLEmptyInput(t *testing.T) {
	doc := FromHTML("   ", domain.NewAssetMap(), logger.New())
	if got := children(t, doc); len(got) != 0 {
		t.Errorf("expected empty document, got %v", got)
	}
}
