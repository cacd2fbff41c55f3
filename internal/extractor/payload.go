package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
)

// Fields names the parts of an aggregator payload that carry playback URLs.
type Fields struct {
	List string // list of media entries (ex: "list")
	URLs string // delimited playback field of one entry (ex: "vod_play_url")
}

// DefaultFields match the common aggregator listing API.
func DefaultFields() Fields {
	return Fields{List: "list", URLs: "vod_play_url"}
}

// PlaybackRecord holds the absolute URLs embedded in one API response.
type PlaybackRecord struct {
	URLs []string
}

// ErrNoEntries is returned when a payload has no media entry list.
var ErrNoEntries = errors.New("payload has no media entries")

// absURL finds absolute URLs inside delimited playback fields such as
// "ep1$https://a/1.m3u8#ep2$https://b/2.m3u8$$$...".
var absURL = regexp.MustCompile(`https?://[^\s"'<>$#|,]+`)

// ParsePayload reads a listing response. JSON documents are walked with
// json-iterator so that type drift in unrelated fields does not matter;
// anything else is treated as the XML flavour of the API where every <dd>
// holds a playback field.
func ParsePayload(payload []byte, fields Fields) (PlaybackRecord, error) {
	trimmed := bytes.TrimSpace(payload)
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))
	if len(trimmed) == 0 {
		return PlaybackRecord{}, ErrNoEntries
	}

	var rec PlaybackRecord
	var err error
	switch trimmed[0] {
	case '{', '[':
		rec, err = parseJSON(trimmed, fields)
	case '<':
		rec, err = parseMarkup(trimmed)
	default:
		return PlaybackRecord{}, fmt.Errorf("unrecognized payload starting with %q", trimmed[0])
	}
	if err != nil {
		return PlaybackRecord{}, err
	}
	return rec, nil
}

func parseJSON(payload []byte, fields Fields) (PlaybackRecord, error) {
	if !jsoniter.Valid(payload) {
		return PlaybackRecord{}, errors.New("malformed json payload")
	}

	list := jsoniter.Get(payload, fields.List)
	if list.ValueType() != jsoniter.ArrayValue {
		// Some mirrors wrap the listing in a "data" object.
		list = jsoniter.Get(payload, "data", fields.List)
	}
	if list.ValueType() != jsoniter.ArrayValue {
		return PlaybackRecord{}, ErrNoEntries
	}

	var rec PlaybackRecord
	for i := 0; i < list.Size(); i++ {
		field := list.Get(i, fields.URLs)
		if field.ValueType() != jsoniter.StringValue {
			continue
		}
		rec.URLs = append(rec.URLs, findURLs(field.ToString())...)
	}
	return rec, nil
}

// cdata unwraps CDATA sections, which an HTML parser would turn into comments.
var cdata = strings.NewReplacer("<![CDATA[", "", "]]>", "")

func parseMarkup(payload []byte) (PlaybackRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cdata.Replace(string(payload))))
	if err != nil {
		return PlaybackRecord{}, fmt.Errorf("malformed markup payload: %w", err)
	}

	entries := doc.Find("dd")
	if entries.Length() == 0 {
		return PlaybackRecord{}, ErrNoEntries
	}

	var rec PlaybackRecord
	entries.Each(func(_ int, s *goquery.Selection) {
		rec.URLs = append(rec.URLs, findURLs(s.Text())...)
	})
	return rec, nil
}

func findURLs(field string) []string {
	// Escaped slashes survive in some double-encoded payloads.
	field = strings.ReplaceAll(field, `\/`, "/")
	return absURL.FindAllString(field, -1)
}
