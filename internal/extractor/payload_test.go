package extractor

import (
	"errors"
	"testing"
)

func TestParsePayloadJSON(t *testing.T) {
	payload := []byte(`{
  "code": 1,
  "page": "1",
  "list": [
    {"vod_id": 1, "vod_play_url": "第01集$https://yyv14.qewbn.com:8443/a/index.m3u8#第02集$https://yyv15.qewbn.com/b/index.m3u8"},
    {"vod_id": "2", "vod_play_url": "HD$https:\/\/cdnlz29.videohost.net\/c.m3u8$$$HD$https://v3.other.org/d.mp4"},
    {"vod_id": 3, "vod_play_url": null},
    {"vod_id": 4}
  ]
}`)

	rec, err := ParsePayload(payload, DefaultFields())
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}

	want := []string{
		"https://yyv14.qewbn.com:8443/a/index.m3u8",
		"https://yyv15.qewbn.com/b/index.m3u8",
		"https://cdnlz29.videohost.net/c.m3u8",
		"https://v3.other.org/d.mp4",
	}
	if len(rec.URLs) != len(want) {
		t.Fatalf("URLs = %v, want %v", rec.URLs, want)
	}
	for i := range want {
		if rec.URLs[i] != want[i] {
			t.Errorf("URLs[%d] = %q, want %q", i, rec.URLs[i], want[i])
		}
	}
}

func TestParsePayloadWrappedJSON(t *testing.T) {
	payload := []byte(`{"data":{"list":[{"vod_play_url":"1$https://edge.tiny.io/x.m3u8"}]}}`)

	rec, err := ParsePayload(payload, DefaultFields())
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if len(rec.URLs) != 1 || rec.URLs[0] != "https://edge.tiny.io/x.m3u8" {
		t.Errorf("URLs = %v", rec.URLs)
	}
}

func TestParsePayloadXML(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="utf-8"?>
<rss version="5.1"><list page="1" pagecount="10">
<video><name><![CDATA[Demo]]></name>
<dl><dd flag="m3u8"><![CDATA[第01集$https://v8.cdnhost.com/1.m3u8#第02集$https://v9.cdnhost.com/2.m3u8]]></dd></dl>
</video></list></rss>`)

	rec, err := ParsePayload(payload, DefaultFields())
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if len(rec.URLs) != 2 {
		t.Fatalf("URLs = %v, want 2 urls", rec.URLs)
	}
	if rec.URLs[0] != "https://v8.cdnhost.com/1.m3u8" {
		t.Errorf("URLs[0] = %q", rec.URLs[0])
	}
}

func TestParsePayloadFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		noList  bool
	}{
		{name: "empty", payload: "   ", noList: true},
		{name: "truncated json", payload: `{"list":[{"vod_play_url":"`},
		{name: "json without list", payload: `{"code":0,"msg":"closed"}`, noList: true},
		{name: "html error page", payload: `<html><body>503</body></html>`, noList: true},
		{name: "plain text", payload: `service unavailable`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.payload), DefaultFields())
			if err == nil {
				t.Fatal("ParsePayload() should return error")
			}
			if tt.noList && !errors.Is(err, ErrNoEntries) {
				t.Errorf("ParsePayload() error = %v, want ErrNoEntries", err)
			}
		})
	}
}
