package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseDurationText(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"3:45", 225},
		{"1:02:03", 3723},
		{"59", 59},
		{"", 0},
	}
	for _, c := range cases {
		if got := parseDurationText(c.text); got != c.want {
			t.Errorf("parseDurationText(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestParseViewCount(t *testing.T) {
	cases := []struct {
		text string
		want int64
	}{
		{"1,234,567 views", 1234567},
		{"12 views", 12},
		{"views", 0},
		{"0 views", 0},
	}
	for _, c := range cases {
		if got := parseViewCount(c.text); got != c.want {
			t.Errorf("parseViewCount(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestApplyScramblerSliceSwapReverse(t *testing.T) {
	ops := []scramblerOp{
		{kind: opSlice, arg: 3},
		{kind: opSwap, arg: 2},
		{kind: opReverse},
	}
	got := applyScrambler(ops, "abcdefgh")
	want := "hgdef"
	if got != want {
		t.Fatalf("applyScrambler() = %q, want %q", got, want)
	}
}

func TestApplyScramblerReverseEvenLength(t *testing.T) {
	ops := []scramblerOp{{kind: opReverse}}
	got := applyScrambler(ops, "abcdefgh")
	want := "hgfedcba"
	if got != want {
		t.Fatalf("applyScrambler() = %q, want %q", got, want)
	}
}

func TestApplyScramblerIsPure(t *testing.T) {
	ops := []scramblerOp{{kind: opSlice, arg: 2}, {kind: opReverse}}
	a := applyScrambler(ops, "deadbeefcafe")
	b := applyScrambler(ops, "deadbeefcafe")
	if a != b {
		t.Fatalf("applyScrambler is not pure: %q != %q", a, b)
	}
}

const fakePlayerScript = `var Nx={qb:function(a,b){a.splice(0,b)},Wv:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c},TQ:function(a){a.reverse()}};` +
	`a=function(a){a=a.split("");Nx.qb(a,3);Nx.Wv(a,2);Nx.TQ(a);return a.join("")}`

func TestMineScramblerOpsMatchesDirectApplication(t *testing.T) {
	scramblerCache.set = false
	ops, err := mineScramblerOps(fakePlayerScript)
	if err != nil {
		t.Fatalf("mineScramblerOps: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("mineScramblerOps() = %d ops, want 3", len(ops))
	}

	direct := []scramblerOp{
		{kind: opSlice, arg: 3},
		{kind: opSwap, arg: 2},
		{kind: opReverse},
	}
	got := applyScrambler(ops, "abcdefgh")
	want := applyScrambler(direct, "abcdefgh")
	if got != want {
		t.Fatalf("mined ops produced %q, want %q", got, want)
	}
}

func TestCachedScramblerOpsReusesResult(t *testing.T) {
	scramblerCache.set = false
	first, err := cachedScramblerOps(fakePlayerScript)
	if err != nil {
		t.Fatalf("cachedScramblerOps: %v", err)
	}
	second, err := cachedScramblerOps("garbage that would fail to mine")
	if err != nil {
		t.Fatalf("cachedScramblerOps (cached): %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("second call re-mined instead of reusing the cache")
	}
}

func TestResolveMediaURLPrefersDirectURL(t *testing.T) {
	r := NewResolver(nil, nil)
	v := &VideoData{
		ID: "abc123",
		streaming: &streamingData{AdaptiveFormats: []adaptiveFormat{
			{MimeType: `audio/webm; codecs="opus"`, Bitrate: 128000, URL: "https://example.invalid/media.webm"},
		}},
	}
	got, err := r.ResolveMediaURL(context.Background(), v)
	if err != nil {
		t.Fatalf("ResolveMediaURL: %v", err)
	}
	if got != "https://example.invalid/media.webm" {
		t.Fatalf("ResolveMediaURL() = %q", got)
	}
}

func TestResolveMediaURLNoOpusFormat(t *testing.T) {
	r := NewResolver(nil, nil)
	v := &VideoData{ID: "abc123", streaming: &streamingData{}}
	if _, err := r.ResolveMediaURL(context.Background(), v); err == nil {
		t.Fatal("expected error for missing opus format")
	}
}

func TestResolveMediaURLDescramblesCipher(t *testing.T) {
	scramblerCache.set = false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakePlayerScript))
	}))
	defer srv.Close()

	cipher := "s=abcdefgh&sp=sig&url=" + "https%3A%2F%2Fexample.invalid%2Fmedia.webm%3Fitag%3D251"
	v := &VideoData{
		ID:        "abc123",
		playerURL: srv.URL,
		streaming: &streamingData{AdaptiveFormats: []adaptiveFormat{
			{MimeType: `audio/webm; codecs="opus"`, Bitrate: 128000, SignatureCipher: cipher},
		}},
	}

	r := NewResolver(srv.Client(), nil)
	got, err := r.ResolveMediaURL(context.Background(), v)
	if err != nil {
		t.Fatalf("ResolveMediaURL: %v", err)
	}

	want := applyScrambler([]scramblerOp{
		{kind: opSlice, arg: 3},
		{kind: opSwap, arg: 2},
		{kind: opReverse},
	}, "abcdefgh")

	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parsing resolved url: %v", err)
	}
	if sig := parsed.Query().Get("sig"); sig != want {
		t.Fatalf("sig = %q, want %q", sig, want)
	}
	if rb := parsed.Query().Get("ratebypass"); rb != "yes" {
		t.Fatalf("ratebypass = %q, want yes", rb)
	}
}

func TestSearchParsesVideoRenderers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"contents": {
				"twoColumnSearchResultsRenderer": {
					"primaryContents": {
						"sectionListRenderer": {
							"contents": [{
								"itemSectionRenderer": {
									"contents": [{
										"videoRenderer": {
											"videoId": "vid1",
											"title": {"runs": [{"text": "A Great Song"}]},
											"ownerText": {"runs": [{"text": "Some Artist"}]},
											"lengthText": {"simpleText": "3:21"},
											"viewCountText": {"simpleText": "1,000 views"},
											"ownerBadges": [{"metadataBadgeRenderer": {"icon": {"iconType": "OFFICIAL_ARTIST_BADGE"}}}]
										}
									}]
								}
							}]
						}
					}
				}
			}
		}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.Client(), nil)
	results, err := searchAgainst(r, srv.URL)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() = %d results, want 1", len(results))
	}
	got := results[0]
	if got.ID != "vid1" || got.Title != "A Great Song" || got.Author != "Some Artist" {
		t.Fatalf("unexpected video data: %+v", got)
	}
	if got.Duration != 201 {
		t.Fatalf("Duration = %v, want 201", got.Duration)
	}
	if got.Views != 1000 {
		t.Fatalf("Views = %v, want 1000", got.Views)
	}
	if !got.FromArtist {
		t.Fatalf("FromArtist = false, want true")
	}
}

// searchAgainst runs the same parse path as Resolver.Search but against an
// arbitrary base URL, letting the test point at an httptest.Server instead
// of the real Innertube endpoint.
func searchAgainst(r *Resolver, base string) ([]*VideoData, error) {
	raw, err := r.fetchText(context.Background(), base+"/youtubei/v1/search?key=test", `{"query":"test"}`)
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(raw)
}

func TestGetVideoParsesWatchPage(t *testing.T) {
	var page strings.Builder
	page.WriteString("<html><head></head><body><script>\n")
	page.WriteString(`var cfg = {"jsUrl":"/s/player/abc123/player.js"};` + "\n")
	page.WriteString(`var ytInitialPlayerResponse = {"videoDetails":{"videoId":"vid1","author":"Some Artist","title":"A Great Song","lengthSeconds":"201","viewCount":"1000"},"streamingData":{"adaptiveFormats":[{"mimeType":"audio/webm; codecs=\"opus\"","bitrate":128000,"url":"https://example.invalid/media.webm"}]}};` + "\n")
	page.WriteString(`var ytInitialData = {"contents":{}};` + "\n")
	page.WriteString("</script></body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page.String()))
	}))
	defer srv.Close()

	r := NewResolver(srv.Client(), nil)
	raw, err := r.fetchText(context.Background(), srv.URL+"/watch?v=vid1", "")
	if err != nil {
		t.Fatalf("fetchText: %v", err)
	}
	v, err := parseWatchPage(raw, "vid1")
	if err != nil {
		t.Fatalf("parseWatchPage: %v", err)
	}
	if v.Title != "A Great Song" || v.Duration != 201 || v.Views != 1000 {
		t.Fatalf("unexpected video data: %+v", v)
	}
	if !v.CanResolveMedia() {
		t.Fatalf("CanResolveMedia() = false, want true")
	}
}
