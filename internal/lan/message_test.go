package lan

import (
	"strings"
	"testing"

	"github.com/playdar/playdar/internal/query"
)

func TestEncodeDecodePing_RoundTrips(t *testing.T) {
	data, err := EncodePing("node-a", 8888)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	mt, err := Sniff(data)
	if err != nil || mt != MsgPing {
		t.Fatalf("expected ping, got %v err=%v", mt, err)
	}
	m, err := decodePing(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if m.FromName != "node-a" || m.HTTPPort != 8888 {
		t.Fatalf("unexpected decoded ping: %+v", m)
	}
}

func TestEncodeResult_StripsURL(t *testing.T) {
	ri := query.ResultItem{Source: "node-a", SID: "sid1", URL: "http://node-a:8888/sid/sid1"}
	data, err := EncodeResult("qid1", ri)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if strings.Contains(string(data), "url") {
		t.Fatalf("expected url field stripped from wire payload, got %s", data)
	}
	m, err := decodeResult(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if m.Result.URL != "" {
		t.Fatalf("expected decoded URL empty, got %q", m.Result.URL)
	}
	if m.QID != "qid1" || m.Result.SID != "sid1" {
		t.Fatalf("unexpected decoded result: %+v", m)
	}
}

func TestEncodeRQ_CarriesFullQuery(t *testing.T) {
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "node-a", "")
	data, err := EncodeRQ(q)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	m, err := decodeRQ(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if m.QID != q.QID || len(m.Triples) != 1 || m.Triples[0].Artist != "A" {
		t.Fatalf("unexpected decoded rq: %+v", m)
	}
}

func TestSniff_MissingMsgTypeIsError(t *testing.T) {
	_, err := Sniff([]byte(`{"from_name":"x"}`))
	if err == nil {
		t.Fatalf("expected error for missing _msgtype")
	}
}

func TestSniff_MalformedJSONIsError(t *testing.T) {
	_, err := Sniff([]byte(`not json`))
	if err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestEncode_RefusesOversizedPayload(t *testing.T) {
	triples := make([]query.Triple, 0, 200)
	for i := 0; i < 200; i++ {
		triples = append(triples, query.Triple{Artist: strings.Repeat("x", 50), Track: "t"})
	}
	q := query.New(triples, query.ModeNormal, "", "")
	_, err := EncodeRQ(q)
	if err == nil {
		t.Fatalf("expected oversized payload to be refused")
	}
}
