package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateArticleItemPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"newswire",
		"source_item_id":"12345",
		"title":"SEC files lawsuit against exchange",
		"url":"https://example.com/story/12345",
		"published_at":"2026-08-13T14:00:00Z",
		"extraction":{
			"nucleus_entity":"SEC",
			"actors":[{"name":"SEC","salience":5},{"name":"Coinbase","salience":3}],
			"actions":["files lawsuit"],
			"tensions":["regulation vs innovation"],
			"summary":"The SEC sued a major exchange."
		}
	}`)

	item, err := ValidateArticleItemPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.Source != "newswire" {
		t.Fatalf("expected source=newswire, got %q", item.Source)
	}
	if item.Extraction == nil || item.Extraction.NucleusEntity != "SEC" {
		t.Fatalf("expected extraction nucleus SEC, got %+v", item.Extraction)
	}
}

func TestValidateArticleItemPayload_EmptyNucleusTolerated(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"newswire",
		"source_item_id":"67890",
		"title":"Extraction found nothing",
		"extraction":{"nucleus_entity":""}
	}`)

	item, err := ValidateArticleItemPayload(payload)
	if err != nil {
		t.Fatalf("empty nucleus must validate (article is skipped later): %v", err)
	}
	if item.Extraction.NucleusEntity != "" {
		t.Fatalf("expected empty nucleus, got %q", item.Extraction.NucleusEntity)
	}
}

func TestValidateArticleItemPayload_MissingRequired(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"newswire",
		"title":"Missing source item id"
	}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for missing source_item_id")
	}
}

func TestValidateArticleItemPayload_SalienceOutOfRange(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"newswire",
		"source_item_id":"a1",
		"title":"Bad salience",
		"extraction":{
			"nucleus_entity":"Acme",
			"actors":[{"name":"Acme","salience":9}]
		}
	}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for salience > 5")
	}
}

func TestValidateArticleItemPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","source":"s","source_item_id":"1","title":"t"} {}`)

	_, err := ValidateArticleItemPayload(payload)
	if err == nil {
		t.Fatalf("expected trailing content to fail")
	}
	if !strings.Contains(err.Error(), "trailing content") {
		t.Fatalf("expected trailing content error, got: %v", err)
	}
}
